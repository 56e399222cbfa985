package reactor

import "sync/atomic"

// Clock is a monotonic logical clock stamping commits.
//
// Every commit of a reactor gets a strictly increasing Seq, so observers
// and the journal can order commits without wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use, although commits are
// only stamped on the main loop.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start.
// Used to continue numbering after a journal replay.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
