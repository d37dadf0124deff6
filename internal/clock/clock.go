// Package clock provides the daemon's time source: wall-clock for logging
// and deadline arithmetic, monotonic for interval math, and the
// suspend-detection heuristic shared by the delayed-wake detector.
package clock

import "time"

// SuspendEpsilon is the slack added to an intended sleep duration before a
// wall-clock jump is attributed to machine suspend rather than scheduler
// jitter.
const SuspendEpsilon = 2 * time.Second

// Clock is the daemon's time source. Production code uses Real; tests
// inject a Fake to control wake timing deterministically.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
	// NewTimer returns a timer that fires after d; callers select on its
	// channel alongside their other cases, so the wait stays cancellable.
	NewTimer(d time.Duration) *time.Timer
}

// Real is the production Clock, backed directly by the time package.
type Real struct{}

func (Real) Now() time.Time                       { return time.Now() }
func (Real) NewTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }

// SuspendedDuringSleep reports whether a sleep that was intended to last
// intended actually elapsed wallElapsed of wall-clock time, which is
// evidence of machine suspend (vs. ordinary scheduler delay) when the
// excess exceeds SuspendEpsilon.
func SuspendedDuringSleep(intended, wallElapsed time.Duration) bool {
	return wallElapsed-intended > SuspendEpsilon
}
