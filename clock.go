package loyalty

import (
	"sync"
	"time"
)

// Clock supplies timestamps for created_at and transaction records.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns the wall clock, guarded against going backwards.
func SystemClock() Clock {
	return Monotonic(ClockFunc(time.Now))
}

type monotonicClock struct {
	mu   sync.Mutex
	src  Clock
	last time.Time
}

// Monotonic wraps src so that successive readings never decrease.
// Readings are in UTC at microsecond precision, which every store
// round-trips exactly.
func Monotonic(src Clock) Clock {
	if m, ok := src.(*monotonicClock); ok {
		return m
	}
	return &monotonicClock{src: src}
}

func (c *monotonicClock) Now() time.Time {
	t := c.src.Now().UTC().Truncate(time.Microsecond)

	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
