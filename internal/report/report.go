// Package report implements the optional periodic summary (spec §4.10):
// scanning the session log since the last report and, on the configured
// schedule, emitting a report event plus a best-effort desktop
// notification.
package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/cryochamber/cryo/internal/eventlog"
	"github.com/cryochamber/cryo/internal/logging"
)

var log = logging.ForComponent(logging.CompReport)

// desktopNotify is overridden in tests.
var desktopNotify = beeep.Notify

// Summary aggregates session outcomes over one reporting window.
type Summary struct {
	TotalSessions  int
	FailedSessions int
	PeriodHours    uint64
}

// Generate scans logPath for sessions closed since `since` and classifies
// each as failed if it was interrupted (crashed) or is otherwise
// non-"ok". PeriodHours is the wall-clock span from since to now.
func Generate(logPath string, since time.Time) (Summary, error) {
	sessions, err := eventlog.ScanSessions(logPath)
	if err != nil {
		return Summary{}, err
	}

	var total, failed int
	for _, s := range sessions {
		ts, err := time.Parse(time.RFC3339, s.Timestamp)
		if err == nil && ts.Before(since) {
			continue
		}
		total++
		if isFailed(s) {
			failed++
		}
	}

	periodHours := uint64(time.Since(since).Hours())
	return Summary{TotalSessions: total, FailedSessions: failed, PeriodHours: periodHours}, nil
}

func isFailed(s eventlog.Session) bool {
	if s.Interrupted || !s.Closed {
		return true
	}
	for _, e := range s.Events {
		if e.Kind == "session_complete" {
			return e.Fields["kind"] != "ok"
		}
	}
	return false
}

// Notify sends a desktop notification summarizing the report. Best-effort:
// errors are logged, never propagated.
func Notify(summary Summary, projectName string) {
	body := fmt.Sprintf("Last %s: %d sessions, %d failed",
		periodLabel(summary.PeriodHours), summary.TotalSessions, summary.FailedSessions)
	title := "Cryochamber Report: " + projectName
	if err := desktopNotify(title, body, ""); err != nil {
		log.Warn("report_notify_failed", slog.String("error", err.Error()))
	}
}

func periodLabel(hours uint64) string {
	switch {
	case hours <= 23:
		return fmt.Sprintf("%dh", hours)
	case hours <= 167:
		return fmt.Sprintf("%dd", hours/24)
	default:
		return fmt.Sprintf("%dw", hours/168)
	}
}

// NextReportTime computes the next wall-clock-aligned report deadline.
// Returns false if reporting is disabled (intervalHours == 0) or
// reportTime is not a valid "HH:MM" string — the caller is expected to
// warn once and disable reporting for the run in that case (spec §9).
func NextReportTime(reportTime string, intervalHours uint64, lastReport *time.Time, now time.Time) (time.Time, bool) {
	if intervalHours == 0 {
		return time.Time{}, false
	}

	t, err := time.Parse("15:04", reportTime)
	if err != nil {
		return time.Time{}, false
	}

	interval := time.Duration(intervalHours) * time.Hour
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(interval)
	}

	if lastReport != nil {
		minNext := lastReport.Add(interval)
		for next.Before(minNext) {
			next = next.Add(interval)
		}
	}

	return next, true
}
