package daemon

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/cryochamber/cryo/internal/config"
	"github.com/cryochamber/cryo/internal/eventlog"
	"github.com/cryochamber/cryo/internal/mailbox"
	"github.com/cryochamber/cryo/internal/retry"
	"github.com/cryochamber/cryo/internal/state"
	"github.com/cryochamber/cryo/internal/supervisor"
)

// runSession spawns one agent invocation and drives it to completion,
// grounded on original_source/src/daemon.rs's run_one_session — but
// Go-idiomized as a select loop instead of a 100ms polling loop, since the
// supervisor.Process.Done channel lets "child exited" be one more select
// case rather than something only discoverable by polling try_wait.
func (d *Daemon) runSession(cfg config.Config, st state.RuntimeState, delayedWakeNotice string, rs *retry.State) (sessionOutcome, error) {
	task, ok := eventlog.LatestTask(d.logPath)
	if !ok || task == "" {
		task = "Continue the plan"
	}

	inboxEntries, err := mailbox.Read(d.dir, "inbox")
	if err != nil {
		return sessionOutcome{}, err
	}
	inboxFilenames := make([]string, len(inboxEntries))
	for i, e := range inboxEntries {
		inboxFilenames[i] = e.Filename
	}

	var providerEnv map[string]string
	var providerName string
	if len(cfg.Providers) > 0 {
		p := cfg.Providers[rs.ProviderIndex%len(cfg.Providers)]
		providerEnv = p.Env
		providerName = p.Name
	}

	now := d.clock.Now()
	logger, err := eventlog.Begin(d.logPath, st.SessionNumber, task, cfg.Agent, inboxFilenames, now)
	if err != nil {
		return sessionOutcome{}, err
	}
	defer logger.Abort()
	if d.index != nil {
		logger.WithIndex(d.index, rs.ProviderIndex, now)
	}

	if delayedWakeNotice != "" {
		logger.LogEvent(d.clock.Now(), "delayed_wake", eventlog.Bare(delayedWakeNotice))
	}
	if providerName != "" {
		logger.LogEvent(d.clock.Now(), "provider", eventlog.KV("name", providerName))
	}

	prompt := buildPrompt(now, st.SessionNumber, task, delayedWakeNotice)

	proc, err := supervisor.Start(supervisor.Spec{
		Command:    cfg.Agent,
		ProjectDir: d.dir,
		SocketPath: d.socketPath,
		Env:        providerEnv,
		LogPath:    d.agentLogPath,
		Prompt:     prompt,
	})
	if err != nil {
		return sessionOutcome{}, err
	}
	logger.LogEvent(d.clock.Now(), "agent_started", eventlog.KV("pid", strconv.Itoa(proc.PID())))

	sess := &runningSession{}

	var timeoutC <-chan struct{}
	if cfg.MaxSessionDuration > 0 {
		timer := d.clock.NewTimer(secondsToDuration(cfg.MaxSessionDuration))
		defer timer.Stop()
		ch := make(chan struct{})
		go func() {
			<-timer.C
			close(ch)
		}()
		timeoutC = ch
	}

	for {
		select {
		case ev := <-d.events:
			switch ev.kind {
			case evShutdown:
				log.Info("session_interrupted_by_shutdown", slog.Uint64("session", uint64(st.SessionNumber)))
				proc.Stop()
				d.archiveInbox(inboxFilenames)
				return d.finishSession(logger, sess, "daemon shutdown")

			case evIPCCall:
				d.handleIPCCall(ev.call, logger, sess, cfg)

			case evInboxChanged, evForcedWake:
				// No effect on a running session: the next session will pick
				// up new inbox messages and any forced wake is already moot.
			}

		case <-proc.Done():
			code, outcome := proc.Wait(context.Background(), sess.hibernateOutcome != nil)
			d.archiveInbox(inboxFilenames)
			logger.LogEvent(d.clock.Now(), "agent_exited", eventlog.KV("code", strconv.Itoa(code)), eventlog.KV("outcome", outcome.String()))

			if sess.hibernateOutcome != nil {
				logger.Finish(d.clock.Now(), "session_complete", eventlog.KV("kind", "ok"))
				return *sess.hibernateOutcome, nil
			}

			quickExit := outcome == supervisor.OutcomeQuickExit
			logger.Finish(d.clock.Now(), "session_complete", eventlog.KV("kind", "crash"), eventlog.KV("outcome", outcome.String()))
			return sessionOutcome{kind: outcomeValidationFailed, quickExit: quickExit}, nil

		case <-timeoutC:
			log.Warn("session_timeout", slog.Uint64("session", uint64(st.SessionNumber)), slog.Uint64("max_seconds", cfg.MaxSessionDuration))
			logger.LogEvent(d.clock.Now(), "timeout", eventlog.KV("max_seconds", strconv.FormatUint(cfg.MaxSessionDuration, 10)))
			proc.Stop()
			d.archiveInbox(inboxFilenames)
			return d.finishSession(logger, sess, "session duration exceeded")
		}
	}
}

// finishSession closes the event log frame once the child has been
// stopped externally (shutdown or timeout), honoring any hibernate outcome
// the session had already recorded before being interrupted.
func (d *Daemon) finishSession(logger *eventlog.Writer, sess *runningSession, reason string) (sessionOutcome, error) {
	now := d.clock.Now()
	if sess.hibernateOutcome != nil {
		logger.Finish(now, "session_complete", eventlog.KV("kind", "ok"), eventlog.KV("reason", reason))
		return *sess.hibernateOutcome, nil
	}
	logger.Finish(now, "session_complete", eventlog.KV("kind", "crash"), eventlog.KV("reason", reason))
	return sessionOutcome{kind: outcomeValidationFailed, quickExit: false}, nil
}

func (d *Daemon) archiveInbox(filenames []string) {
	if len(filenames) == 0 {
		return
	}
	if err := mailbox.Archive(d.dir, filenames); err != nil {
		log.Warn("inbox_archive_failed", slog.String("error", err.Error()))
	}
}
