package engine

import "sync/atomic"

// SeqClock hands out logical time. Each Next is greater than every seq
// returned before it.
type SeqClock interface {
	Next() int64
	Current() int64
}

// Clock is the default SeqClock. The first stamp is 1.
//
// A journal.Recorder and the queries it feeds share one Clock, so
// mutations, cache refreshes and runs are ordered on a single timeline.
// Safe for concurrent use.
type Clock struct {
	last atomic.Int64
}

func NewClock() *Clock { return new(Clock) }

// Next stamps one event.
func (c *Clock) Next() int64 { return c.last.Add(1) }

// Current returns the last stamp handed out, or 0 before the first.
func (c *Clock) Current() int64 { return c.last.Load() }
