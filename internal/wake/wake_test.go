package wake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDetectUnderThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduled := now.Add(-4 * time.Minute)
	_, delayed := Detect(scheduled, now)
	require.False(t, delayed, "4 min delay should not be flagged")
}

func TestDetectOverThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduled := now.Add(-6 * time.Minute)
	s, delayed := Detect(scheduled, now)
	require.True(t, delayed, "6 min delay should be flagged")
	require.Equal(t, "6m", s)
}

func TestDetectBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	onTime := now.Add(-4*time.Minute - 59*time.Second)
	_, delayed := Detect(onTime, now)
	require.False(t, delayed, "4m59s is on-time")

	justOver := now.Add(-5*time.Minute - 1*time.Second)
	_, delayed = Detect(justOver, now)
	require.True(t, delayed, "5m01s is delayed")
}

func TestDetectHoursAndMinutes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduled := now.Add(-90 * time.Minute)
	s, delayed := Detect(scheduled, now)
	require.True(t, delayed)
	require.Equal(t, "1h30m", s)
}

func TestNotice(t *testing.T) {
	scheduled := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg := Notice(scheduled, "10m")
	require.Contains(t, msg, "DELAYED WAKE")
	require.Contains(t, msg, "10m")
	require.Contains(t, msg, "2026-03-01T09:00")
}
