package daemon

import (
	"fmt"
	"time"
)

// buildPrompt renders the text piped to the agent's stdin at session start.
// It deliberately stays slim: the agent is expected to read cryo.log and
// messages/inbox/ itself rather than have their contents embedded here
// — this mirrors the session_number/task/delayed_wake
// signature original_source/src/daemon.rs actually builds at its call
// site, not the richer (and inconsistent) AgentConfig shape checked into
// original_source/src/agent.rs.
func buildPrompt(now time.Time, sessionNumber uint32, task, delayedWakeNotice string) string {
	var notice string
	if delayedWakeNotice != "" {
		notice = "\n" + delayedWakeNotice + "\n"
	}

	return fmt.Sprintf(`Cryochamber session %d, started %s.

Read cryo.log for history and messages/inbox/ for anything new — this
prompt does not repeat them.
%s
Task: %s

When you are done for this session, send exactly one terminal request over
the IPC socket at $CRYO_SOCKET before exiting:

  {"cmd":"hibernate","complete":true,"exit_code":0,"summary":"..."}

or, to schedule the next session:

  {"cmd":"hibernate","wake":"2026-03-08T09:00","exit_code":0,"summary":"..."}

Use {"cmd":"note","text":"..."} for progress notes, {"cmd":"alert",...} to
arm a fallback notification, and {"cmd":"send"|"reply"|"receive",...} for
operator messages.
`, sessionNumber, now.Format("2006-01-02T15:04:05"), notice, task)
}
