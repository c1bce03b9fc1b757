package clock

import "time"

// Clock abstracts "now" so calendar-month boundaries and grace windows can be
// simulated deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// Fixed returns a clock frozen at t.
func Fixed(t time.Time) Clock { return fixedClock{t: t} }

type fixedClock struct {
	t time.Time
}

func (f fixedClock) Now() time.Time { return f.t }

// StartOfMonth returns midnight UTC on the first day of t's calendar month.
func StartOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
