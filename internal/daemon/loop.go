package daemon

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cryochamber/cryo/internal/config"
	"github.com/cryochamber/cryo/internal/fallback"
	"github.com/cryochamber/cryo/internal/ipc"
	"github.com/cryochamber/cryo/internal/report"
	"github.com/cryochamber/cryo/internal/retry"
	"github.com/cryochamber/cryo/internal/state"
	"github.com/cryochamber/cryo/internal/wake"
)

// loopState holds the main loop's scheduling variables across iterations.
//
// Deliberately NOT seeded from the persisted RuntimeState.NextWake or
// FallbackDeadline at startup: original_source/src/daemon.rs's Daemon::run
// initializes its equivalent locals (next_wake, pending_fallback) to None
// unconditionally and never reloads them from cryo_state, so a restarted
// daemon always immediately runs a fresh session rather than waiting out a
// stale schedule. Those RuntimeState fields exist purely for external
// observability (`cryo status`), not loop resumption. Preserved here on
// purpose — see DESIGN.md.
type loopState struct {
	nextWake         *time.Time
	fallbackDeadline *time.Time
	pendingFallback  *fallback.Action
	nextReport       *time.Time
}

// loop is the Idle/Running/AwaitingRetry state machine. It returns nil on
// a clean shutdown (signal or plan completion); a session that fails to
// even start (spawn failure, I/O error) is logged and retried on the
// backoff schedule rather than returned as an error.
func (d *Daemon) loop(cfg config.Config, st *state.RuntimeState, rs *retry.State) error {
	rotatePolicy := retry.ParseRotateOn(cfg.RotateOn)

	ls := &loopState{}
	if next, ok := report.NextReportTime(cfg.ReportTimeOfDay, cfg.ReportIntervalHours, st.LastReportTime, d.clock.Now()); ok {
		ls.nextReport = &next
	} else if cfg.ReportIntervalHours > 0 {
		log.Warn("report_disabled_invalid_time", slog.String("report_time_of_day", cfg.ReportTimeOfDay))
	}

	runNow := true
	for {
		if runNow {
			runNow = false
			again, shutdown, err := d.runOnce(cfg, st, rs, rotatePolicy, ls)
			if err != nil {
				return err
			}
			if shutdown {
				return nil
			}
			runNow = again
			continue
		}

		wakeNow, shutdown := d.idleWait(cfg, st, ls)
		if shutdown {
			return nil
		}
		runNow = wakeNow
	}
}

// runOnce runs exactly one session and classifies its outcome, matching
// original_source/src/daemon.rs's per-iteration dispatch on
// SessionLoopOutcome. Returns (runAgainImmediately, shutdown, err).
func (d *Daemon) runOnce(cfg config.Config, st *state.RuntimeState, rs *retry.State, rotatePolicy retry.RotateOn, ls *loopState) (runAgain, shutdown bool, err error) {
	now := d.clock.Now()
	savedWake := ls.nextWake

	var delayedNotice string
	if ls.nextWake != nil {
		if s, delayed := wake.Detect(*ls.nextWake, now); delayed {
			delayedNotice = wake.Notice(*ls.nextWake, s)
			ls.fallbackDeadline = nil
			ls.pendingFallback = nil
		}
	}
	ls.nextWake = nil

	st.SessionNumber++
	st.NextWake = nil
	if len(cfg.Providers) > 0 {
		st.ProviderIndex = uint32(rs.ProviderIndex)
	}
	_ = state.Save(d.statePath, *st)
	d.notifyStatus()

	outcome, sessErr := d.runSession(cfg, *st, delayedNotice, rs)
	if sessErr != nil {
		st.SessionNumber--
		ls.nextWake = savedWake
		log.Error("session_failed_to_start", slog.String("error", sessErr.Error()))
		return d.retryAfterFailure(cfg, rs, ls)
	}

	switch outcome.kind {
	case outcomePlanComplete:
		rs.Reset()
		d.clearFallback(st, ls)
		exitCode := outcome.exitCode
		st.LastExitCode = &exitCode
		_ = state.Save(d.statePath, *st)
		d.notifyStatus()
		log.Info("plan_complete", slog.Uint64("session", uint64(st.SessionNumber)))
		return false, true, nil

	case outcomeHibernate:
		rs.Reset()
		wt := outcome.wakeTime
		ls.nextWake = &wt
		st.NextWake = &wt
		exitCode := outcome.exitCode
		st.LastExitCode = &exitCode
		if outcome.fallbackArmed {
			fd := outcome.fallbackDeadline
			ls.fallbackDeadline = &fd
			ls.pendingFallback = outcome.fallbackAction
			st.FallbackDeadline = &fd
		} else {
			d.clearFallback(st, ls)
		}
		_ = state.Save(d.statePath, *st)
		d.notifyStatus()
		log.Info("next_wake_scheduled", slog.Time("wake", wt))
		return false, false, nil

	default: // outcomeValidationFailed
		ls.nextWake = savedWake
		if retry.ShouldRotate(rotatePolicy, outcome.quickExit) {
			if len(cfg.Providers) > 1 {
				return d.rotateAndRetry(rs, st)
			}
			log.Info("provider_rotation_noop", slog.Int("providers", len(cfg.Providers)))
		}
		return d.retryAfterFailure(cfg, rs, ls)
	}
}

func (d *Daemon) clearFallback(st *state.RuntimeState, ls *loopState) {
	ls.fallbackDeadline = nil
	ls.pendingFallback = nil
	st.FallbackDeadline = nil
}

// rotateAndRetry advances to the next configured provider after a crash
// the rotate_on policy deems rotation-worthy. A rotation that wraps back
// to provider 0 counts as a wrap: a 60s minimum backoff is enforced
// regardless of the retry schedule position, so a daemon with every
// provider failing doesn't hot-loop across them (spec §4.3). A rotation
// that does not wrap waits the schedule's current backoff. The attempt
// count is left unchanged by a rotation.
func (d *Daemon) rotateAndRetry(rs *retry.State, st *state.RuntimeState) (runAgain, shutdown bool, err error) {
	from := rs.ProviderIndex
	wrapped := rs.RotateProvider()
	st.ProviderIndex = uint32(rs.ProviderIndex)
	_ = state.Save(d.statePath, *st)
	log.Info("provider_rotated", slog.Int("from", from), slog.Int("to", rs.ProviderIndex), slog.Bool("wrapped", wrapped))

	backoff := retry.EffectiveBackoff(rs.NextBackoff(), wrapped)
	if d.awaitRetry(backoff) {
		return false, true, nil
	}
	return true, false, nil
}

// retryAfterFailure applies the backoff schedule after a non-rotating
// failure, firing a retry-exhausted alert the moment the attempt count
// first reaches max_retries (spec §4.3 — retries continue indefinitely
// afterward, just at the capped cadence).
func (d *Daemon) retryAfterFailure(cfg config.Config, rs *retry.State, ls *loopState) (runAgain, shutdown bool, err error) {
	backoff := rs.NextBackoff()
	rs.RecordFailure()

	if rs.Attempt == rs.MaxRetries {
		log.Warn("retries_exhausted", slog.Uint64("max_retries", uint64(rs.MaxRetries)))
		action := fallback.Action{
			Kind:    "retry_exhausted",
			Target:  "operator",
			Message: fmt.Sprintf("Agent failed to hibernate after %d attempts in %s. The daemon will keep retrying.", rs.MaxRetries, d.dir),
		}
		if ferr := fallback.Fire(d.dir, cfg.FallbackAlert, action, d.push); ferr != nil {
			log.Warn("retry_alert_failed", slog.String("error", ferr.Error()))
		}
	}

	log.Info("retry_scheduled", slog.Uint64("attempt", uint64(rs.Attempt)), slog.Duration("backoff", backoff))
	if d.awaitRetry(backoff) {
		return false, true, nil
	}
	return true, false, nil
}

// awaitRetry blocks for duration, preemptible by shutdown (returns true)
// or by an inbox/forced-wake event (returns false early, same as a timer
// expiry — both resume with a fresh session attempt). Any IPC call
// arriving during the wait gets an error response: no session is running
// to dispatch it to.
func (d *Daemon) awaitRetry(duration time.Duration) (shutdown bool) {
	timer := d.clock.NewTimer(duration)
	defer timer.Stop()
	for {
		select {
		case ev := <-d.events:
			switch ev.kind {
			case evShutdown:
				return true
			case evInboxChanged, evForcedWake:
				return false
			case evIPCCall:
				ev.call.Reply <- ipc.ErrResponse("no active session")
			}
		case <-timer.C:
			return false
		}
	}
}

// idleWait is the Idle-state suspension point: it fires any fallback that
// has come due, sends a periodic report if one is due, then blocks until
// the earliest of next_wake/next_report/fallback_deadline/far-future, or
// until an event preempts it.
func (d *Daemon) idleWait(cfg config.Config, st *state.RuntimeState, ls *loopState) (wakeNow, shutdown bool) {
	now := d.clock.Now()

	if ls.fallbackDeadline != nil && !now.Before(*ls.fallbackDeadline) && ls.pendingFallback != nil {
		action := *ls.pendingFallback
		log.Info("fallback_firing", slog.String("kind", action.Kind))
		if err := fallback.Fire(d.dir, cfg.FallbackAlert, action, d.push); err != nil {
			log.Warn("fallback_fire_failed", slog.String("error", err.Error()))
		}
		d.clearFallback(st, ls)
		_ = state.Save(d.statePath, *st)
	}

	if ls.nextReport != nil && !now.Before(*ls.nextReport) {
		d.sendPeriodicReport(cfg, st, ls)
	}

	deadline := computeDeadline(d.clock.Now(), ls.nextWake, ls.nextReport, ls.fallbackDeadline)
	timer := d.clock.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case ev := <-d.events:
		switch ev.kind {
		case evShutdown:
			return false, true
		case evInboxChanged, evForcedWake:
			log.Info("woken_by_event")
			return true, false
		case evIPCCall:
			ev.call.Reply <- ipc.ErrResponse("no active session")
			return false, false
		}
		return false, false

	case <-timer.C:
		if ls.nextWake != nil && !d.clock.Now().Before(*ls.nextWake) {
			return true, false
		}
		return false, false
	}
}

func (d *Daemon) sendPeriodicReport(cfg config.Config, st *state.RuntimeState, ls *loopState) {
	since := d.clock.Now().Add(-time.Duration(cfg.ReportIntervalHours) * time.Hour)
	summary, err := report.Generate(d.logPath, since)
	if err != nil {
		log.Warn("report_generate_failed", slog.String("error", err.Error()))
	} else {
		report.Notify(summary, filepath.Base(d.dir))
		log.Info("report_sent", slog.Int("total", summary.TotalSessions), slog.Int("failed", summary.FailedSessions))
	}

	now := d.clock.Now()
	prevLastReport := st.LastReportTime
	st.LastReportTime = &now
	if err := state.Save(d.statePath, *st); err != nil {
		log.Warn("persist_last_report_failed", slog.String("error", err.Error()))
		st.LastReportTime = prevLastReport
		return
	}

	if next, ok := report.NextReportTime(cfg.ReportTimeOfDay, cfg.ReportIntervalHours, st.LastReportTime, now); ok {
		ls.nextReport = &next
		log.Info("next_report_scheduled", slog.Time("at", next))
	} else {
		ls.nextReport = nil
	}
}
