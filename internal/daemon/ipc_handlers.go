package daemon

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cryochamber/cryo/internal/config"
	"github.com/cryochamber/cryo/internal/eventlog"
	"github.com/cryochamber/cryo/internal/fallback"
	"github.com/cryochamber/cryo/internal/ipc"
	"github.com/cryochamber/cryo/internal/mailbox"
)

// sessionOutcomeKind classifies how a running session ended, mirroring
// original_source/src/daemon.rs's SessionLoopOutcome enum.
type sessionOutcomeKind int

const (
	outcomePlanComplete sessionOutcomeKind = iota
	outcomeHibernate
	outcomeValidationFailed
)

// sessionOutcome is what runSession returns to the main loop.
type sessionOutcome struct {
	kind sessionOutcomeKind

	// outcomeHibernate
	wakeTime         time.Time
	fallbackArmed    bool
	fallbackDeadline time.Time
	fallbackAction   *fallback.Action

	// outcomePlanComplete, outcomeHibernate
	exitCode uint8

	// outcomeValidationFailed
	quickExit bool
}

// runningSession carries the mutable state a session accumulates across
// IPC calls: whether a terminal Hibernate has already been recorded (the
// exactly-once-hibernate invariant, spec §4.4) and any Alert issued this
// session that a subsequent Hibernate may arm as a fallback.
type runningSession struct {
	hibernateOutcome *sessionOutcome
	pendingFallback  *fallback.Action
	alertIssued      bool
}

// handleIPCCall dispatches one decoded request arriving while a session is
// running. call.Req is always a successfully-decoded Request — malformed
// lines are resolved entirely inside ipc.Server.handle and never reach
// Calls().
func (d *Daemon) handleIPCCall(call ipc.Call, logger *eventlog.Writer, sess *runningSession, cfg config.Config) {
	now := d.clock.Now()

	if sess.hibernateOutcome != nil {
		if _, isHibernate := call.Req.(ipc.Hibernate); !isHibernate {
			// Harmless per spec §4.4: the agent is still shutting down after
			// its terminal request, so late non-terminal calls are logged
			// and processed normally rather than rejected.
			logger.LogEvent(now, "late_request", eventlog.KV("cmd", call.Req.Cmd()))
		}
	}

	switch req := call.Req.(type) {
	case ipc.Note:
		logger.LogEvent(now, "note", eventlog.Bare(req.Text))
		call.Reply <- ipc.OKResponse("note recorded", nil)

	case ipc.Send:
		subject := "Message from agent"
		if req.Subject != nil {
			subject = *req.Subject
		}
		d.deliverOutbound(call, logger, "send", mailbox.Message{From: "agent", Subject: subject, Timestamp: now, Body: req.Text})

	case ipc.Reply:
		d.deliverOutbound(call, logger, "reply", mailbox.Message{From: "agent", Subject: "Reply", Timestamp: now, Body: req.Text})

	case ipc.Receive:
		d.handleReceive(call)

	case ipc.Alert:
		sess.pendingFallback = &fallback.Action{Kind: req.Action, Target: req.Target, Message: req.Message}
		sess.alertIssued = true
		logger.LogEvent(now, "alert", eventlog.KV("action", req.Action), eventlog.KV("target", req.Target))
		call.Reply <- ipc.OKResponse("alert registered", nil)

	case ipc.Time:
		d.handleTime(call, req, now)

	case ipc.Hibernate:
		d.handleHibernate(call, req, logger, sess, cfg, now)

	default:
		call.Reply <- ipc.ErrResponse("unsupported request")
	}
}

func (d *Daemon) deliverOutbound(call ipc.Call, logger *eventlog.Writer, kind string, msg mailbox.Message) {
	filename, err := mailbox.Write(d.dir, "outbox", msg)
	now := d.clock.Now()
	if err != nil {
		logger.LogEvent(now, kind+"_failed", eventlog.KV("error", err.Error()))
		call.Reply <- ipc.ErrResponse("failed to write message: " + err.Error())
		return
	}
	logger.LogEvent(now, kind, eventlog.KV("file", filename))
	call.Reply <- ipc.OKResponse("message sent", nil)
}

func (d *Daemon) handleReceive(call ipc.Call) {
	entries, err := mailbox.Read(d.dir, "inbox")
	if err != nil {
		call.Reply <- ipc.ErrResponse("failed to read inbox: " + err.Error())
		return
	}

	type inboxMessage struct {
		From      string `json:"from"`
		Subject   string `json:"subject"`
		Timestamp string `json:"timestamp"`
		Body      string `json:"body"`
	}
	msgs := make([]inboxMessage, len(entries))
	for i, e := range entries {
		msgs[i] = inboxMessage{
			From:      e.Message.From,
			Subject:   e.Message.Subject,
			Timestamp: e.Message.Timestamp.Format(time.RFC3339),
			Body:      e.Message.Body,
		}
	}
	call.Reply <- ipc.OKResponse(fmt.Sprintf("%d pending messages", len(msgs)), msgs)
}

func (d *Daemon) handleTime(call ipc.Call, req ipc.Time, now time.Time) {
	t := now
	if req.Offset != nil {
		dur, err := time.ParseDuration(*req.Offset)
		if err != nil {
			call.Reply <- ipc.ErrResponse("invalid offset: " + err.Error())
			return
		}
		t = t.Add(dur)
	}
	call.Reply <- ipc.OKResponse("ok", map[string]string{"time": t.Format(time.RFC3339)})
}

// handleHibernate implements the exactly-once-hibernate invariant: the
// first Hibernate request this session is authoritative and recorded as
// sess.hibernateOutcome for the session loop to act on once the child
// actually exits; any later Hibernate is logged and ignored (spec §4.4).
func (d *Daemon) handleHibernate(call ipc.Call, req ipc.Hibernate, logger *eventlog.Writer, sess *runningSession, cfg config.Config, now time.Time) {
	if sess.hibernateOutcome != nil {
		logger.LogEvent(now, "hibernate", eventlog.KV("outcome", "ignored_duplicate"))
		call.Reply <- ipc.OKResponse("ignored: hibernate already recorded this session", nil)
		return
	}

	summary := "(no summary)"
	if req.Summary != nil {
		summary = *req.Summary
	}

	if req.Complete {
		logger.LogEvent(now, "hibernate", eventlog.KV("complete", "true"), eventlog.KV("exit", strconv.Itoa(int(req.ExitCode))), eventlog.KV("summary", summary))
		sess.hibernateOutcome = &sessionOutcome{kind: outcomePlanComplete, exitCode: req.ExitCode}
		call.Reply <- ipc.OKResponse("plan complete, shutting down", nil)
		return
	}

	if req.Wake == nil {
		call.Reply <- ipc.ErrResponse("hibernate requires either complete=true or a wake time")
		return
	}
	wakeTime, err := time.ParseInLocation("2006-01-02T15:04", *req.Wake, time.Local)
	if err != nil {
		call.Reply <- ipc.ErrResponse("invalid wake time: " + err.Error())
		return
	}

	logger.LogEvent(now, "hibernate", eventlog.KV("wake", *req.Wake), eventlog.KV("exit", strconv.Itoa(int(req.ExitCode))), eventlog.KV("summary", summary))

	outcome := sessionOutcome{kind: outcomeHibernate, wakeTime: wakeTime, exitCode: req.ExitCode}
	if deadline, armed := fallback.ArmDeadline(wakeTime, sess.alertIssued, cfg.FallbackAlert); armed {
		outcome.fallbackArmed = true
		outcome.fallbackDeadline = deadline
		outcome.fallbackAction = sess.pendingFallback
	}
	sess.hibernateOutcome = &outcome

	call.Reply <- ipc.OKResponse("hibernating until "+*req.Wake, nil)
}
