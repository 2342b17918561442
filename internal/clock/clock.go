// Package clock provides the monotonic millisecond time source the stack
// and control function state machines are built against (j1939.Clock),
// generalizing the single process-global timer the reference
// implementation hard-coded.
package clock

import "time"

// System is a j1939.Clock backed by the wall clock, anchored at the moment
// it is constructed so NowMillis starts near zero instead of returning a
// raw Unix timestamp.
type System struct {
	start time.Time
}

// New creates a System clock.
func New() *System {
	return &System{start: time.Now()}
}

// NowMillis implements j1939.Clock.
func (c *System) NowMillis() uint64 {
	return uint64(time.Since(c.start).Milliseconds())
}
