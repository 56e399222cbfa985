package mainloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"

	"github.com/roach88/reactor/internal/queue"
)

// ErrAlreadyRunning is returned by Run when the loop already has a goroutine.
var ErrAlreadyRunning = errors.New("mainloop: already running")

// Loop is a single-goroutine FIFO task executor.
//
// CRITICAL: Every task runs on the goroutine that called Run. Tasks must not
// block on other goroutines that themselves wait for the loop (use Post, or
// Await, which keeps pumping).
type Loop struct {
	name   string
	queue  *queue.Queue[func()]
	logger *slog.Logger

	gid       atomic.Int64 // goroutine id of Run; 0 while not running
	running   atomic.Bool
	startOnce sync.Once
	started   chan struct{}
	done      chan struct{}
	executed  atomic.Int64
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for task panics and lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithName labels the loop in log output.
func WithName(name string) Option {
	return func(l *Loop) {
		l.name = name
	}
}

// New creates a Loop. The loop does not execute tasks until Run or Start.
func New(opts ...Option) *Loop {
	l := &Loop{
		name:    "main",
		queue:   queue.New[func()](),
		logger:  slog.Default(),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("loop", l.name)
	return l
}

var (
	defaultOnce sync.Once
	defaultLoop *Loop
)

// Default returns the process-wide main loop, starting it on first use.
func Default() *Loop {
	defaultOnce.Do(func() {
		defaultLoop = New()
		defaultLoop.Start()
	})
	return defaultLoop
}

// Start runs the loop on a new goroutine. Calling Start more than once is a no-op.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		go func() {
			if err := l.Run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error("main loop exited", "error", err)
			}
		}()
		select {
		case <-l.started:
		case <-l.done:
		}
	})
}

// Run executes tasks until ctx is cancelled or Stop is called.
// Blocks until the loop exits. Tasks still queued at Stop are executed
// before Run returns; tasks queued at cancellation are dropped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	l.gid.Store(goid.Get())
	close(l.started)
	defer func() {
		l.gid.Store(0)
		close(l.done)
	}()

	l.logger.Debug("main loop starting")

	for {
		if task, ok := l.queue.TryDequeue(); ok {
			l.exec(task)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("main loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which makes this case fire immediately from then on.
			if l.queue.Closed() && l.queue.Len() == 0 {
				l.logger.Debug("main loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the task queue. Run drains the remaining tasks and returns.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// OnLoop reports whether the caller is running on the loop goroutine.
func (l *Loop) OnLoop() bool {
	id := l.gid.Load()
	return id != 0 && id == goid.Get()
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	return l.queue.Len()
}

// Executed returns the number of tasks run so far.
func (l *Loop) Executed() int64 {
	return l.executed.Load()
}

// Post enqueues fn for asynchronous execution on the loop.
// Returns false if the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	return l.queue.Enqueue(fn)
}

// Do runs fn on the loop and waits for it to finish.
//
// When called from the loop goroutine, fn runs inline. A panic inside fn is
// re-raised on the calling goroutine. Returns false if the loop stopped
// before fn could run.
func (l *Loop) Do(fn func()) bool {
	if l.OnLoop() {
		fn()
		return true
	}

	finished := make(chan struct{})
	var recovered any
	ok := l.queue.Enqueue(func() {
		defer close(finished)
		defer func() {
			recovered = recover()
		}()
		fn()
	})
	if !ok {
		return false
	}

	select {
	case <-finished:
	case <-l.done:
		select {
		case <-finished:
		default:
			return false
		}
	}

	if recovered != nil {
		panic(recovered)
	}
	return true
}

// Await blocks until ch is closed or ctx is done.
//
// On the loop goroutine, Await keeps executing queued tasks while it waits,
// so work that the awaited event depends on can still make progress.
func (l *Loop) Await(ctx context.Context, ch <-chan struct{}) error {
	if !l.OnLoop() {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if task, ok := l.queue.TryDequeue(); ok {
			l.exec(task)
			continue
		}

		wake := l.queue.Wait()
		if l.queue.Closed() {
			// Closed signal channel would spin; nothing more can arrive.
			wake = nil
		}
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// exec runs a task. Panics are logged and swallowed here; Do re-raises
// them on its caller.
func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", fmt.Sprint(r))
		}
	}()
	l.executed.Add(1)
	task()
}
