package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextBackoffSequence(t *testing.T) {
	s := New(5, 1)
	want := []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second,
		80 * time.Second, 160 * time.Second, 320 * time.Second, 640 * time.Second,
		1280 * time.Second, 2560 * time.Second, 3600 * time.Second, 3600 * time.Second,
	}
	for i, w := range want {
		require.Equal(t, w, s.NextBackoff(), "attempt %d", i)
		s.RecordFailure()
	}
}

func TestNextBackoffExhaustedAtFive(t *testing.T) {
	s := New(5, 1)
	for i := 0; i < 4; i++ {
		require.False(t, s.Exhausted())
		s.RecordFailure()
	}
	require.Equal(t, 80*time.Second, s.NextBackoff())
	s.RecordFailure()
	require.True(t, s.Exhausted())
	require.Equal(t, 160*time.Second, s.NextBackoff())
}

func TestNextBackoffCappedAtMax(t *testing.T) {
	s := New(5, 1)
	for i := 0; i < 15; i++ {
		s.RecordFailure()
	}
	require.Equal(t, MaxBackoff, s.NextBackoff())
}

func TestNextBackoffNeverExceedsCapOver100Attempts(t *testing.T) {
	s := New(5, 1)
	for i := 0; i < 100; i++ {
		require.LessOrEqual(t, s.NextBackoff(), MaxBackoff)
		s.RecordFailure()
	}
}

func TestResetClearsAttemptPreservesProvider(t *testing.T) {
	s := New(5, 3)
	s.RecordFailure()
	s.RecordFailure()
	s.RotateProvider() // index -> 1
	s.RecordFailure()
	require.Equal(t, uint32(3), s.Attempt)
	require.Equal(t, 1, s.ProviderIndex)

	s.Reset()
	require.Equal(t, uint32(0), s.Attempt)
	require.Equal(t, 1, s.ProviderIndex, "provider index must be preserved across reset")
}

func TestExhaustedBoundary(t *testing.T) {
	s := New(3, 1)
	require.False(t, s.Exhausted())
	s.RecordFailure()
	require.False(t, s.Exhausted())
	s.RecordFailure()
	require.False(t, s.Exhausted())
	s.RecordFailure()
	require.True(t, s.Exhausted(), "attempt == max_retries is exhausted")
}

func TestRotateProviderSingleProviderAlwaysWraps(t *testing.T) {
	s := New(5, 1)
	require.True(t, s.RotateProvider())
	require.Equal(t, 0, s.ProviderIndex)
}

func TestRotateProviderZeroProvidersIsNoOpWrap(t *testing.T) {
	s := New(5, 0)
	require.True(t, s.RotateProvider())
	require.Equal(t, 0, s.ProviderIndex)
}

func TestRotateProviderAdvancesAndWraps(t *testing.T) {
	s := New(5, 3)
	require.Equal(t, 0, s.ProviderIndex)

	require.False(t, s.RotateProvider(), "0->1 should not wrap")
	require.Equal(t, 1, s.ProviderIndex)

	require.False(t, s.RotateProvider(), "1->2 should not wrap")
	require.Equal(t, 2, s.ProviderIndex)

	require.True(t, s.RotateProvider(), "2->0 should wrap")
	require.Equal(t, 0, s.ProviderIndex)
}

func TestShouldRotate(t *testing.T) {
	require.False(t, ShouldRotate(RotateNever, true))
	require.False(t, ShouldRotate(RotateNever, false))
	require.True(t, ShouldRotate(RotateQuickExit, true))
	require.False(t, ShouldRotate(RotateQuickExit, false))
	require.True(t, ShouldRotate(RotateAnyFailure, true))
	require.True(t, ShouldRotate(RotateAnyFailure, false))
}

func TestParseRotateOn(t *testing.T) {
	require.Equal(t, RotateQuickExit, ParseRotateOn("quick-exit"))
	require.Equal(t, RotateAnyFailure, ParseRotateOn("any-failure"))
	require.Equal(t, RotateNever, ParseRotateOn("never"))
	require.Equal(t, RotateNever, ParseRotateOn(""))
}

func TestEffectiveBackoffAppliesWrapMinimum(t *testing.T) {
	require.Equal(t, WrapMinBackoff, EffectiveBackoff(5*time.Second, true))
	require.Equal(t, 5*time.Second, EffectiveBackoff(5*time.Second, false))
	require.Equal(t, 90*time.Second, EffectiveBackoff(90*time.Second, true), "schedule value already exceeds wrap minimum")
}
