package hunt

import "time"

// Clock supplies wall-clock time for history timestamps and time-based rules.
// Production code uses SystemClock; tests inject testutil clocks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
