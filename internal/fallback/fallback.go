// Package fallback implements the dead-man-switch alert: armed at
// hibernate when a session issued an Alert, fired when the daemon wakes
// with fallback_deadline as the earliest pending deadline (spec §4.8).
package fallback

import (
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/cryochamber/cryo/internal/logging"
	"github.com/cryochamber/cryo/internal/mailbox"
)

var log = logging.ForComponent(logging.CompFallback)

// desktopNotify is overridden in tests so the desktop-unavailable fallback
// path can be exercised deterministically.
var desktopNotify = beeep.Notify

// Deadline is how long after a scheduled wake the fallback alert fires if
// the agent has not started a new session (spec §4.8: "wake_time + 1 hour").
const Deadline = time.Hour

// Action is the alert payload carried from an Alert IPC request through to
// firing.
type Action struct {
	Kind    string // the Alert request's action ("email" | "webhook" | ...), or "retry_exhausted" for the daemon's own alert
	Target  string
	Message string
}

// Pusher delivers a web-push notification as a secondary channel when
// desktop notification fails or is unavailable (e.g. headless daemon).
type Pusher interface {
	Send(title, body string) error
}

// ArmDeadline returns the fallback_deadline to persist when a session
// hibernates with wake set, at least one Alert was issued, and
// fallbackAlert != "none". Returns zero time, false otherwise.
func ArmDeadline(wake time.Time, alertIssued bool, fallbackAlert string) (time.Time, bool) {
	if !alertIssued || fallbackAlert == "none" || wake.IsZero() {
		return time.Time{}, false
	}
	return wake.Add(Deadline), true
}

// Fire executes the configured alert action: writes to messages/outbox/
// under "outbox"/"notify", and additionally attempts a desktop
// notification — falling back to push if one is configured — under
// "notify". Best-effort throughout: delivery errors are logged, never
// fatal (spec §7 "Fallback delivery error: log and continue").
func Fire(projectDir string, fallbackAlert string, action Action, push Pusher) error {
	if fallbackAlert == "none" {
		return nil
	}

	msg := mailbox.Message{
		From:      "cryochamber",
		Subject:   "Fallback Alert: " + action.Kind,
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"fallback_action": action.Kind,
			"fallback_target": action.Target,
		},
		Body: action.Message,
	}
	filename, err := mailbox.Write(projectDir, "outbox", msg)
	if err != nil {
		log.Error("fallback_outbox_write_failed", slog.String("error", err.Error()))
	} else {
		log.Info("fallback_fired", slog.String("kind", action.Kind), slog.String("file", filename))
	}

	if fallbackAlert == "notify" {
		notify(action, push)
	}
	return nil
}

func notify(action Action, push Pusher) {
	title := "Cryochamber Alert: " + action.Kind
	if err := desktopNotify(title, action.Message, ""); err != nil {
		log.Warn("fallback_desktop_notify_failed", slog.String("error", err.Error()))
		if push != nil {
			if pushErr := push.Send(title, action.Message); pushErr != nil {
				log.Warn("fallback_push_notify_failed", slog.String("error", pushErr.Error()))
			}
		}
	}
}
