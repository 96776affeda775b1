// Package monoclock provides a monotonic nanosecond clock. Go's time.Time
// already carries a monotonic reading alongside the wall clock as long as
// it originates from time.Now, so time.Since against a fixed epoch is
// immune to wall-clock steps (NTP adjustments, manual clock changes) —
// this is the mechanism SPEC_FULL.md §9's "monotonic timestamps" note
// asks for, without needing a platform-specific clock_gettime call.
package monoclock

import "time"

// Clock produces monotonic nanosecond timestamps relative to the instant
// it was created.
type Clock struct {
	epoch time.Time
}

// New returns a Clock anchored to the current instant.
func New() Clock {
	return Clock{epoch: time.Now()}
}

// NowNs returns elapsed monotonic nanoseconds since the clock was created.
func (c Clock) NowNs() int64 {
	return int64(time.Since(c.epoch))
}
