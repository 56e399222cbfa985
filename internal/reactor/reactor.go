package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/reactor/internal/mainloop"
	"github.com/roach88/reactor/internal/stream"
)

// DefaultPrimeTimeout bounds how long New waits for its pipelines to
// register their subscriptions.
const DefaultPrimeTimeout = time.Second

// Reactor is a running unidirectional state container.
//
// CRITICAL: the accumulator and the observer list are only touched on the
// main loop. Every other field is either immutable after New or atomic.
type Reactor[A, M, S any] struct {
	id           string
	name         string
	logic        Logic[A, M, S]
	loop         *mainloop.Loop
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	clock        *Clock
	primeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	bag    *Bag

	actions  *stream.Subject[A] // Action()
	injected *stream.Subject[M] // Mutate()
	async    *stream.Subject[M] // values of async batch parts
	states   *stream.Subject[S] // folded states, before TransformState

	current  atomic.Pointer[Commit[S]]
	disposed atomic.Bool

	// Loop-only.
	acc        S
	folding    bool
	foldKind   CommitKind
	observers  []*observer[S] // copy-on-write
	outbox     []Commit[S]
	delivering bool
}

type settings struct {
	loop         *mainloop.Loop
	logger       *slog.Logger
	name         string
	metrics      *Metrics
	tracer       trace.Tracer
	ids          IDGenerator
	clock        *Clock
	primeTimeout time.Duration
}

// Option configures a Reactor.
type Option func(*settings)

// WithLoop sets the main loop commits happen on. Default: mainloop.Default().
func WithLoop(loop *mainloop.Loop) Option {
	return func(s *settings) {
		s.loop = loop
	}
}

// WithLogger sets the base logger. The reactor adds its name and id.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithName labels the reactor in logs, metrics, spans and the journal.
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for the span around each Mutate call.
// Default: the global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) {
		s.tracer = t
	}
}

// WithIDGenerator sets the generator for the reactor id.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *settings) {
		s.ids = g
	}
}

// WithClock sets the clock stamping commits, e.g. NewClockAt after replay.
func WithClock(c *Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithPrimeTimeout bounds how long New waits for the pipelines to prime.
//
// Default: 1s (DefaultPrimeTimeout). Only transforms that block without
// parking ever hit the bound.
func WithPrimeTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.primeTimeout = d
	}
}

// New builds the reactor's pipelines and returns it active.
//
// The transform hooks of logic are invoked exactly once, here. New returns
// once every pipeline has registered its subscriptions and every mutation
// available without waiting (such as a prepended bootstrap mutation) has
// been committed. When called on the main loop, New keeps executing loop
// tasks while it waits.
func New[A, M, S any](logic Logic[A, M, S], initial S, opts ...Option) *Reactor[A, M, S] {
	cfg := settings{
		name:         "reactor",
		ids:          UUIDv7Generator{},
		primeTimeout: DefaultPrimeTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.loop == nil {
		cfg.loop = mainloop.Default()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer("github.com/roach88/reactor")
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := cfg.ids.Generate()
	r := &Reactor[A, M, S]{
		id:           id,
		name:         cfg.name,
		logic:        logic,
		loop:         cfg.loop,
		logger:       cfg.logger.With("reactor", cfg.name, "reactor_id", id),
		metrics:      cfg.metrics,
		tracer:       cfg.tracer,
		clock:        cfg.clock,
		primeTimeout: cfg.primeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		bag:          NewBag(),
		actions:      stream.NewSubject[A](),
		injected:     stream.NewSubject[M](),
		async:        stream.NewSubject[M](),
		states:       stream.NewSubject[S](),
		acc:          initial,
	}
	r.current.Store(&Commit[S]{Seq: r.clock.Next(), Kind: KindInitial, State: initial})
	r.bag.Add(r.teardown)

	r.build()
	r.metrics.started(r.name)
	r.logger.Debug("reactor started")
	return r
}

// build wires the three pipelines. The state pipeline must be subscribed
// before any mutation can be folded into it.
func (r *Reactor[A, M, S]) build() {
	states := transformState(r.logic, r.states.Stream())
	r.prime(stream.Start(r.ctx, states, r.handleState))

	mutations := stream.Merge(
		transformMutation(r.logic, r.async.Stream()),
		r.injected.Stream(),
	)
	actions := transformAction(r.logic, r.actions.Stream())
	r.prime(
		stream.Start(r.ctx, mutations, r.handleMutation),
		stream.Start(r.ctx, actions, r.handleAction),
	)
}

func (r *Reactor[A, M, S]) prime(runs ...stream.Run) {
	for _, run := range runs {
		ctx, cancel := context.WithTimeout(context.Background(), r.primeTimeout)
		err := r.loop.Await(ctx, run.Primed())
		cancel()
		if err != nil {
			r.logger.Warn("pipeline not primed, continuing",
				"timeout", r.primeTimeout,
				"error", err,
			)
		}
	}
}

// ID returns the reactor's unique id.
func (r *Reactor[A, M, S]) ID() string { return r.id }

// Name returns the reactor's label.
func (r *Reactor[A, M, S]) Name() string { return r.name }

// Loop returns the main loop the reactor commits on.
func (r *Reactor[A, M, S]) Loop() *mainloop.Loop { return r.loop }

// Action sends a to the reactor. Safe from any goroutine.
//
// The sync mutations of the resulting batch are committed before Action
// returns; async mutations are committed later as they arrive. After
// Dispose, Action is a no-op.
func (r *Reactor[A, M, S]) Action(a A) {
	if r.disposed.Load() {
		return
	}
	r.actions.Send(a)
}

// Mutate injects m directly into the mutation stream, bypassing
// Logic.Mutate. After Dispose, Mutate is a no-op.
//
// Like the sync part of an action, m is committed before Mutate returns:
// off the loop the caller waits for the loop, on the loop it folds inline.
// A caller must not hold a lock that loop tasks need while calling Mutate.
// Values from an async batch part take the same path on the batch's own
// goroutine, so the goroutine that sent the action never waits for them.
func (r *Reactor[A, M, S]) Mutate(m M) {
	if r.disposed.Load() {
		return
	}
	r.injected.Send(m)
}

// Dispose tears the reactor down by disposing its Bag. Idempotent.
func (r *Reactor[A, M, S]) Dispose() {
	r.bag.Dispose()
}

// teardown stops the pipelines. It is the first handle in the bag, so it
// runs before any observer is cancelled.
func (r *Reactor[A, M, S]) teardown() {
	if !r.disposed.CompareAndSwap(false, true) {
		return
	}
	r.cancel()
	r.actions.Close()
	r.injected.Close()
	r.async.Close()
	r.states.Close()
	r.onLoop(func() {
		r.observers = nil
		r.outbox = nil
	})
	r.metrics.disposed(r.name)
	r.logger.Debug("reactor disposed")
}

// Disposed reports whether Dispose has been called.
func (r *Reactor[A, M, S]) Disposed() bool {
	return r.disposed.Load()
}

// Done is closed when the reactor is disposed.
func (r *Reactor[A, M, S]) Done() <-chan struct{} {
	return r.ctx.Done()
}

// Bag returns the reactor's subscription set. It holds the pipelines'
// teardown and every observer; disposing it is the same as Dispose.
func (r *Reactor[A, M, S]) Bag() *Bag {
	return r.bag
}

func (r *Reactor[A, M, S]) handleAction(a A) bool {
	if r.disposed.Load() {
		return false
	}
	r.metrics.action(r.name)
	batch := r.mutate(a)
	r.logger.Debug("action",
		"sync", len(batch.Sync),
		"async", batch.Async != nil,
	)

	if len(batch.Sync) > 0 {
		ok := r.loop.Do(func() {
			for _, m := range batch.Sync {
				r.fold(m, KindSync)
			}
		})
		if !ok {
			r.logger.Warn("sync mutations dropped", "error", ErrLoopStopped)
		}
	}

	if batch.Async != nil && !r.disposed.Load() {
		go batch.Async(r.ctx, func(m M) bool {
			if r.disposed.Load() {
				return false
			}
			return r.async.Send(m)
		})
	}
	return true
}

func (r *Reactor[A, M, S]) handleMutation(m M) bool {
	if r.disposed.Load() {
		return false
	}
	if !r.loop.Do(func() { r.fold(m, KindAsync) }) {
		r.logger.Warn("mutation dropped", "error", ErrLoopStopped)
		return false
	}
	return true
}

func (r *Reactor[A, M, S]) handleState(s S) bool {
	if r.disposed.Load() {
		return false
	}
	if r.loop.OnLoop() && r.folding {
		r.commit(s, r.foldKind)
		return true
	}
	if !r.loop.Do(func() { r.commit(s, KindAsync) }) {
		r.logger.Warn("state dropped", "error", ErrLoopStopped)
		return false
	}
	return true
}

// fold reduces m into the accumulator and emits the result into the
// state pipeline. Loop only.
func (r *Reactor[A, M, S]) fold(m M, kind CommitKind) {
	if r.disposed.Load() {
		return
	}
	start := time.Now()
	next := r.reduce(r.acc, m)
	r.metrics.observeFold(r.name, time.Since(start))
	r.metrics.mutation(r.name, kind)
	r.acc = next

	prevFolding, prevKind := r.folding, r.foldKind
	r.folding, r.foldKind = true, kind
	defer func() {
		r.folding, r.foldKind = prevFolding, prevKind
	}()
	r.states.Send(next)
}

func (r *Reactor[A, M, S]) mutate(a A) (batch Batch[M]) {
	_, span := r.tracer.Start(r.ctx, "reactor.Mutate",
		trace.WithAttributes(
			attribute.String("reactor.name", r.name),
			attribute.String("reactor.id", r.id),
		),
	)
	defer span.End()
	defer func() {
		if v := recover(); v != nil {
			p := r.logicPanic("mutate", v)
			span.SetStatus(codes.Error, p.Error())
			panic(p)
		}
	}()

	batch = r.logic.Mutate(a)
	span.SetAttributes(
		attribute.Int("reactor.batch.sync", len(batch.Sync)),
		attribute.Bool("reactor.batch.async", batch.Async != nil),
	)
	return batch
}

func (r *Reactor[A, M, S]) reduce(s S, m M) S {
	defer func() {
		if v := recover(); v != nil {
			panic(r.logicPanic("reduce", v))
		}
	}()
	return r.logic.Reduce(s, m)
}

func (r *Reactor[A, M, S]) logicPanic(op string, v any) *LogicPanic {
	if p, ok := v.(*LogicPanic); ok {
		return p
	}
	r.logger.Error("logic panicked", "op", op, "panic", fmt.Sprint(v))
	return &LogicPanic{Reactor: r.name, Op: op, Value: v}
}

// onLoop runs fn inline on the loop goroutine, otherwise posts it.
func (r *Reactor[A, M, S]) onLoop(fn func()) {
	if r.loop.OnLoop() {
		fn()
		return
	}
	r.loop.Post(fn)
}
