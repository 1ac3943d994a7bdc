package core

import "time"

// Budget is the wall-clock allotment for one exploration session. Read-only
// after creation; only the passage of time changes what Exhausted reports.
type Budget struct {
	Start    time.Time
	Duration time.Duration
}

// NewBudget starts a budget of the given duration now.
func NewBudget(d time.Duration) Budget {
	return Budget{Start: time.Now(), Duration: d}
}

// Exhausted reports whether the allotted time has passed.
func (b Budget) Exhausted() bool {
	return time.Since(b.Start) >= b.Duration
}

// Elapsed returns the time spent so far.
func (b Budget) Elapsed() time.Duration {
	return time.Since(b.Start)
}

// Remaining returns the time left, floored at zero.
func (b Budget) Remaining() time.Duration {
	r := b.Duration - time.Since(b.Start)
	if r < 0 {
		return 0
	}
	return r
}
