package clock

import "time"

// Clock abstracts the current time so window checks, refund tiers and
// decision timestamps are deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns a Clock backed by the wall clock (UTC).
func System() Clock { return systemClock{} }

// Fixed returns a Clock frozen at the given instant.
func Fixed(t time.Time) Clock { return fixedClock{t: t.UTC()} }

type fixedClock struct {
	t time.Time
}

func (f fixedClock) Now() time.Time { return f.t }
