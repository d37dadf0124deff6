// Package wake implements the delayed-wake detector (spec §4.9): it
// compares a scheduled wake time to now and classifies the wake as
// on-time or delayed, formatting the delay for both the event log and the
// task prompt handed to the agent.
package wake

import (
	"fmt"
	"time"
)

// Threshold is the minimum delay before a wake is classified as delayed.
const Threshold = 5 * time.Minute

// Detect compares scheduled to now and returns the formatted delay string
// and true iff now is more than Threshold past scheduled. The format is
// "{h}h{m}m" when the delay spans at least one hour, otherwise "{m}m".
func Detect(scheduled, now time.Time) (string, bool) {
	delay := now.Sub(scheduled)
	if delay <= Threshold {
		return "", false
	}

	hours := int(delay / time.Hour)
	minutes := int((delay % time.Hour) / time.Minute)

	if hours > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes), true
	}
	return fmt.Sprintf("%dm", minutes), true
}

// Notice renders the prompt-injected "DELAYED WAKE" notice for a delayed
// session, matching the operator-facing language the agent is expected to
// reason about.
func Notice(scheduled time.Time, delayStr string) string {
	return fmt.Sprintf(
		"DELAYED WAKE: This session was scheduled for %s but is running %s late "+
			"(the host machine was likely suspended or powered off). "+
			"Check whether time-sensitive tasks need adjustment.",
		scheduled.Format("2006-01-02T15:04"), delayStr,
	)
}
