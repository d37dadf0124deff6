package clock

import "time"

// Fake is a deterministic Clock for tests. Now() returns a controllable
// instant advanced explicitly by the test; NewTimer fires almost
// immediately regardless of the requested duration, so tests exercising
// backoff/deadline logic never actually wait out a real schedule.
type Fake struct {
	now time.Time
}

// NewFake returns a Fake clock starting at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time { return f.now }

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) { f.now = f.now.Add(d) }

// Set pins the fake clock to t.
func (f *Fake) Set(t time.Time) { f.now = t }

// NewTimer ignores d and returns a timer that fires after one millisecond,
// so code under test that blocks on a timer channel doesn't slow the test
// suite down to match real backoff/retry schedules.
func (f *Fake) NewTimer(d time.Duration) *time.Timer {
	return time.NewTimer(time.Millisecond)
}
