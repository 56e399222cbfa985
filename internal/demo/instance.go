package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reactor/internal/journal"
	"github.com/roach88/reactor/internal/reactor"
)

// ErrUnknownAction is returned for an action name the reactor does not
// declare.
var ErrUnknownAction = errors.New("unknown action")

// Commit is a commit with the state type erased.
type Commit struct {
	Seq   int64  `json:"seq" yaml:"seq"`
	Kind  string `json:"kind" yaml:"kind"`
	State any    `json:"state" yaml:"state"`
}

// Recording is the journal side of an attached instance.
type Recording interface {
	ReactorID() string
	Written() int64
	Err() error
	Detach()
}

// Instance drives a reactor by action name, with arguments decoded from
// YAML-shaped maps.
type Instance interface {
	ID() string
	Name() string
	Actions() []string

	Send(action string, args map[string]any) error
	SendAndWait(ctx context.Context, action string, args map[string]any, until func(state any) bool) (any, error)
	Inject(args map[string]any) error

	State() any
	Current() Commit
	SubscribeCommits(fn func(Commit)) reactor.Cancel

	// Record journals every commit from now on, and every action sent
	// through the instance.
	Record(ctx context.Context, j *journal.Journal, logger *slog.Logger) (Recording, error)

	Dispose()
}

// ActionEntry is the journal payload of an action sent through an Instance.
type ActionEntry struct {
	Action string         `json:"action"`
	Args   map[string]any `json:"args,omitempty"`
}

type decodeFunc[A any] func(args map[string]any) (A, error)

// act returns a decoder producing a T and converting it to the action
// type A.
func act[A, T any](conv func(T) A) decodeFunc[A] {
	return func(args map[string]any) (A, error) {
		var v T
		if err := DecodeArgs(args, &v); err != nil {
			var zero A
			return zero, err
		}
		return conv(v), nil
	}
}

// DecodeArgs decodes args into out through YAML, rejecting unknown keys.
func DecodeArgs(args map[string]any, out any) error {
	if len(args) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

type instance[A, M, S any] struct {
	r       *reactor.Reactor[A, M, S]
	actions map[string]decodeFunc[A]

	mu  sync.Mutex
	rec *journal.Recorder[A]
}

func newInstance[A, M, S any](r *reactor.Reactor[A, M, S], actions map[string]decodeFunc[A]) *instance[A, M, S] {
	return &instance[A, M, S]{r: r, actions: actions}
}

func (in *instance[A, M, S]) ID() string   { return in.r.ID() }
func (in *instance[A, M, S]) Name() string { return in.r.Name() }

func (in *instance[A, M, S]) Actions() []string {
	names := make([]string, 0, len(in.actions))
	for name := range in.actions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (in *instance[A, M, S]) decode(action string, args map[string]any) (A, error) {
	dec, ok := in.actions[action]
	if !ok {
		var zero A
		return zero, fmt.Errorf("%s: %w %q", in.r.Name(), ErrUnknownAction, action)
	}
	a, err := dec(args)
	if err != nil {
		return a, fmt.Errorf("%s.%s: %w", in.r.Name(), action, err)
	}
	return a, nil
}

func (in *instance[A, M, S]) note(action string, args map[string]any) {
	in.mu.Lock()
	rec := in.rec
	in.mu.Unlock()
	if rec != nil {
		rec.Note(ActionEntry{Action: action, Args: args})
	}
}

func (in *instance[A, M, S]) Send(action string, args map[string]any) error {
	a, err := in.decode(action, args)
	if err != nil {
		return err
	}
	in.note(action, args)
	in.r.Action(a)
	return nil
}

func (in *instance[A, M, S]) SendAndWait(ctx context.Context, action string, args map[string]any, until func(any) bool) (any, error) {
	a, err := in.decode(action, args)
	if err != nil {
		return nil, err
	}
	in.note(action, args)
	s, err := reactor.SendAndWait(ctx, in.r, a, func(s S) bool { return !until(s) })
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (in *instance[A, M, S]) Inject(args map[string]any) error {
	var m M
	if err := DecodeArgs(args, &m); err != nil {
		return fmt.Errorf("%s: mutation: %w", in.r.Name(), err)
	}
	in.r.Mutate(m)
	return nil
}

func (in *instance[A, M, S]) State() any { return in.r.Read() }

func (in *instance[A, M, S]) Current() Commit {
	return erase(in.r.Current())
}

func (in *instance[A, M, S]) SubscribeCommits(fn func(Commit)) reactor.Cancel {
	return in.r.SubscribeCommits(func(c reactor.Commit[S]) {
		fn(erase(c))
	})
}

func (in *instance[A, M, S]) Record(ctx context.Context, j *journal.Journal, logger *slog.Logger) (Recording, error) {
	rec, err := journal.Attach(ctx, j, in.r, logger)
	if err != nil {
		return nil, err
	}
	in.mu.Lock()
	in.rec = rec
	in.mu.Unlock()
	return rec, nil
}

func (in *instance[A, M, S]) Dispose() { in.r.Dispose() }

func erase[S any](c reactor.Commit[S]) Commit {
	return Commit{Seq: c.Seq, Kind: string(c.Kind), State: c.State}
}

// initialState decodes raw JSON over def. Empty raw keeps def.
func initialState[S any](raw json.RawMessage, def S) (S, error) {
	if len(raw) == 0 {
		return def, nil
	}
	s := def
	if err := json.Unmarshal(raw, &s); err != nil {
		return def, fmt.Errorf("initial state: %w", err)
	}
	return s, nil
}
