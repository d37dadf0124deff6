// Package retry implements the retry/rotation controller (spec §4.3): the
// exponential backoff schedule, provider rotation, and wrap detection.
package retry

import "time"

// MaxBackoff is the hard cap on backoff duration.
const MaxBackoff = 3600 * time.Second

// BaseBackoff is the backoff at attempt 0.
const BaseBackoff = 5 * time.Second

// WrapMinBackoff is the minimum backoff enforced immediately after a
// provider-rotation wrap, regardless of the schedule position, to prevent
// hot-looping across every configured provider.
const WrapMinBackoff = 60 * time.Second

// RotateOn selects when a crash triggers provider rotation.
type RotateOn int

const (
	// RotateNever never rotates providers.
	RotateNever RotateOn = iota
	// RotateQuickExit rotates only when the crash sub-kind is quick_exit.
	RotateQuickExit
	// RotateAnyFailure rotates on any crash kind.
	RotateAnyFailure
)

// ParseRotateOn parses the cryo.toml rotate_on enum value.
func ParseRotateOn(s string) RotateOn {
	switch s {
	case "quick-exit":
		return RotateQuickExit
	case "any-failure":
		return RotateAnyFailure
	default:
		return RotateNever
	}
}

func (r RotateOn) String() string {
	switch r {
	case RotateQuickExit:
		return "quick-exit"
	case RotateAnyFailure:
		return "any-failure"
	default:
		return "never"
	}
}

// State tracks retry attempt count and provider rotation position since
// the last success. It is the in-memory counterpart of RuntimeState's
// retry_count/provider_index fields and is reconstructed from them at
// daemon start.
type State struct {
	Attempt       uint32
	MaxRetries    uint32
	ProviderIndex int
	providerCount int
}

// New creates retry state for a daemon with providerCount configured
// providers (0 or 1 both behave as a single implicit provider).
func New(maxRetries uint32, providerCount int) *State {
	return &State{MaxRetries: maxRetries, providerCount: providerCount}
}

// NextBackoff returns the backoff duration for the current attempt count:
// min(5 * 2^attempt, 3600) seconds. It saturates rather than overflowing
// for arbitrarily large attempt counts.
func (s *State) NextBackoff() time.Duration {
	return backoffForAttempt(s.Attempt)
}

func backoffForAttempt(attempt uint32) time.Duration {
	// 5 << 32 and beyond would overflow a uint64; any shift past the point
	// where the cap is already exceeded saturates immediately.
	if attempt >= 10 {
		return MaxBackoff
	}
	secs := uint64(5) << attempt
	d := time.Duration(secs) * time.Second
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}

// RecordFailure increments the attempt counter following a crashed session.
func (s *State) RecordFailure() {
	s.Attempt++
}

// Reset zeroes the attempt counter after a successful (hibernate-terminated)
// session. ProviderIndex is preserved — a provider that last worked stays
// the active one for the next session.
func (s *State) Reset() {
	s.Attempt = 0
}

// Exhausted reports whether the attempt count has reached MaxRetries.
// Retries continue indefinitely at the capped cadence after exhaustion;
// this only gates provider-rotation-wrap alerting and user-visible
// messaging, per spec §4.3.
func (s *State) Exhausted() bool {
	return s.Attempt >= s.MaxRetries
}

// RotateProvider advances ProviderIndex cyclically and reports whether the
// rotation wrapped back to the starting index (index 0). With zero or one
// configured providers, rotation is always a wrap (nothing to rotate to).
func (s *State) RotateProvider() (wrapped bool) {
	if s.providerCount <= 1 {
		return true
	}
	s.ProviderIndex = (s.ProviderIndex + 1) % s.providerCount
	return s.ProviderIndex == 0
}

// ShouldRotate decides, per the configured policy and the crash sub-kind,
// whether this crash should trigger a provider rotation.
func ShouldRotate(policy RotateOn, quickExit bool) bool {
	switch policy {
	case RotateAnyFailure:
		return true
	case RotateQuickExit:
		return quickExit
	default:
		return false
	}
}

// EffectiveBackoff applies the post-wrap minimum backoff on top of the
// schedule-derived value.
func EffectiveBackoff(scheduled time.Duration, wrapped bool) time.Duration {
	if wrapped && scheduled < WrapMinBackoff {
		return WrapMinBackoff
	}
	return scheduled
}
