package clock

import "time"

// Clock abstracts wall-clock time for the in-memory store and the tooling
// around it. Store-backed expiry and the sliding window "now" both read from
// a Clock, so swapping in a VirtualClock makes every algorithm time-travel
// testable.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock delegates to the standard time package.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}
