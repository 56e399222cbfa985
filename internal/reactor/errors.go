package reactor

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned by operations that need a live reactor.
	ErrDisposed = errors.New("reactor: disposed")

	// ErrLoopStopped is returned when the main loop stopped before a task ran.
	ErrLoopStopped = errors.New("reactor: main loop stopped")
)

// LogicPanic describes a panic raised by Logic.Mutate or Logic.Reduce.
// It is the value re-panicked after the panic has been logged.
type LogicPanic struct {
	Reactor string
	Op      string // "mutate" or "reduce"
	Value   any
}

func (p *LogicPanic) Error() string {
	return fmt.Sprintf("reactor %s: %s panicked: %v", p.Reactor, p.Op, p.Value)
}

// IsLogicPanic returns true if v is (or wraps) a LogicPanic.
func IsLogicPanic(v any) bool {
	err, ok := v.(error)
	if !ok {
		return false
	}
	var lp *LogicPanic
	return errors.As(err, &lp)
}
