package util

import "time"

// Clock provides the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T
type FixedClock struct {
	T time.Time
}

// Now implements Clock
func (c FixedClock) Now() time.Time { return c.T }
