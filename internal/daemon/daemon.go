// Package daemon implements the main orchestrating state machine (spec
// §4.1): Idle, Running, AwaitingRetry, and ShuttingDown, wired to every
// other component package. Grounded on
// original_source/src/daemon.rs's Daemon::run / run_one_session /
// sleep_or_shutdown, Go-idiomized as a single select-driven event loop
// with exactly two suspension points (idle-wait, session-wait) instead of
// the original's 100ms/250ms polling loops.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cryochamber/cryo/internal/clock"
	"github.com/cryochamber/cryo/internal/config"
	"github.com/cryochamber/cryo/internal/cryoerr"
	"github.com/cryochamber/cryo/internal/eventlog"
	"github.com/cryochamber/cryo/internal/fallback"
	"github.com/cryochamber/cryo/internal/inboxwatcher"
	"github.com/cryochamber/cryo/internal/ipc"
	"github.com/cryochamber/cryo/internal/logging"
	"github.com/cryochamber/cryo/internal/mailbox"
	"github.com/cryochamber/cryo/internal/registry"
	"github.com/cryochamber/cryo/internal/retry"
	"github.com/cryochamber/cryo/internal/sessionindex"
	"github.com/cryochamber/cryo/internal/state"
	"github.com/cryochamber/cryo/internal/statusserver"
	"github.com/cryochamber/cryo/internal/supervisor"
)

var log = logging.ForComponent(logging.CompDaemon)

// Daemon owns one project directory's worth of state for the lifetime of
// a `cryo daemon` invocation.
type Daemon struct {
	dir           string
	statePath     string
	logPath       string
	agentLogPath  string
	socketPath    string
	indexPath     string

	clock  clock.Clock
	push   fallback.Pusher
	index  *sessionindex.DB
	status *statusserver.Server

	events chan event
}

// notifyStatus wakes any subscribed status-server WebSocket clients after a
// state transition. Safe to call whether or not the status server is
// enabled: statusserver.(*Server).NotifyStateChanged treats a nil receiver
// as a no-op.
func (d *Daemon) notifyStatus() {
	d.status.NotifyStateChanged()
}

// New constructs a Daemon rooted at dir (the project directory containing
// cryo.toml, timer.json, cryo.log, and messages/).
func New(dir string) *Daemon {
	return &Daemon{
		dir:          dir,
		statePath:    state.Path(dir),
		logPath:      filepath.Join(dir, "cryo.log"),
		agentLogPath: filepath.Join(dir, "cryo-agent.log"),
		indexPath:    filepath.Join(dir, "cryo-index.db"),
		socketPath:   supervisor.SocketPathFor(dir),
		clock:        clock.Real{},
		events:       make(chan event, 8),
	}
}

// WithClock overrides the time source; used by tests for deterministic
// wake/backoff timing.
func (d *Daemon) WithClock(c clock.Clock) *Daemon {
	d.clock = c
	return d
}

// WithPusher sets the secondary web-push fallback channel.
func (d *Daemon) WithPusher(p fallback.Pusher) *Daemon {
	d.push = p
	return d
}

// Run performs the full daemon lifecycle: load state, acquire the PID
// lock, bind the socket, start the auxiliary goroutines, run the main
// loop to completion, and clean up. It returns once the daemon has fully
// shut down (natural completion, signal, or a fatal error).
func (d *Daemon) Run(ctx context.Context) error {
	st, ok, err := state.Load(d.statePath)
	if err != nil {
		return err
	}
	if !ok {
		return cryoerr.Wrap(cryoerr.KindState, "load "+d.statePath, errors.New("no cryochamber state found; run `cryo init` first"))
	}
	if state.IsLocked(st) {
		return fmt.Errorf("daemon: another daemon is already running for %s (pid %s); use `cryo cancel` first", d.dir, pidString(st.PID))
	}

	cfg, _, err := config.Load(config.Path(d.dir))
	if err != nil {
		return err
	}
	cfg.Agent, cfg.MaxRetries, cfg.MaxSessionDuration, cfg.WatchInbox = state.ApplyOverrides(
		st, cfg.Agent, cfg.MaxRetries, cfg.MaxSessionDuration, cfg.WatchInbox)

	pid := os.Getpid()
	st.PID = &pid
	if err := state.Save(d.statePath, st); err != nil {
		return err
	}

	if err := mailbox.EnsureDirs(d.dir); err != nil {
		return err
	}

	if orphaned, _, oerr := eventlog.IsOrphaned(d.logPath); oerr == nil && orphaned {
		if cerr := eventlog.CloseOrphan(d.logPath, d.clock.Now()); cerr != nil {
			log.Warn("close_orphan_failed", slog.String("error", cerr.Error()))
		} else {
			log.Info("orphaned_session_closed")
		}
	}

	if err := os.MkdirAll(filepath.Dir(d.socketPath), 0o755); err != nil {
		return err
	}
	sock, err := ipc.Listen(d.socketPath)
	if err != nil {
		return err
	}
	log.Info("socket_listening", slog.String("path", d.socketPath))

	if err := registry.Register(d.dir); err != nil {
		log.Warn("registry_register_failed", slog.String("error", err.Error()))
	}

	if cfg.SessionIndexEnabled {
		if idx, ierr := sessionindex.Open(d.indexPath); ierr != nil {
			log.Warn("session_index_open_failed", slog.String("error", ierr.Error()))
		} else {
			d.index = idx
			sessionindex.SetGlobal(idx)
			defer func() {
				sessionindex.SetGlobal(nil)
				idx.Close()
			}()
		}
	}

	var inbox *inboxwatcher.Watcher
	inboxDir := filepath.Join(d.dir, "messages", "inbox")
	if cfg.WatchInbox {
		if _, statErr := os.Stat(inboxDir); statErr == nil {
			w, werr := inboxwatcher.Start(inboxDir)
			if werr != nil {
				log.Warn("inbox_watch_start_failed", slog.String("error", werr.Error()))
			} else {
				inbox = w
				log.Info("watching_inbox")
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return sock.Serve() })
	g.Go(func() error { return d.forwardSignals(gctx) })
	g.Go(func() error { return d.forwardIPC(gctx, sock) })
	if inbox != nil {
		g.Go(func() error { return d.forwardInbox(gctx, inbox) })
	}

	if cfg.StatusServerEnabled {
		srv := statusserver.NewServer(statusserver.Config{Host: cfg.WebHost, Port: cfg.WebPort, ProjectDir: d.dir})
		d.status = srv
		g.Go(func() error {
			if serr := srv.Start(); serr != nil {
				log.Warn("status_server_failed", slog.String("error", serr.Error()))
			}
			return nil
		})
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				log.Warn("status_server_shutdown_failed", slog.String("error", serr.Error()))
			}
		}()
		log.Info("status_server_listening", slog.String("addr", srv.Addr()))
	}

	rs := retry.New(cfg.MaxRetries, len(cfg.Providers))
	rs.Attempt = st.RetryCount
	rs.ProviderIndex = int(st.ProviderIndex)

	loopErr := d.loop(cfg, &st, rs)

	cancel() // unblocks any auxiliary goroutine send still waiting on d.events

	st.PID = nil
	st.RetryCount = rs.Attempt
	st.ProviderIndex = uint32(rs.ProviderIndex)
	if serr := state.Save(d.statePath, st); serr != nil {
		log.Warn("final_state_save_failed", slog.String("error", serr.Error()))
	}

	registry.Unregister(d.dir)
	if inbox != nil {
		inbox.Stop()
	}
	sock.Close()
	_ = g.Wait()

	log.Info("daemon_exited")
	return loopErr
}

func (d *Daemon) forwardSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1)
	defer signal.Stop(sigCh)
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.send(ctx, event{kind: evShutdown})
				return nil
			case syscall.SIGUSR1:
				d.send(ctx, event{kind: evForcedWake})
			}
		}
	}
}

func (d *Daemon) forwardInbox(ctx context.Context, w *inboxwatcher.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Changed():
			d.send(ctx, event{kind: evInboxChanged})
		}
	}
}

func (d *Daemon) forwardIPC(ctx context.Context, srv *ipc.Server) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case call, ok := <-srv.Calls():
			if !ok {
				return nil
			}
			d.send(ctx, event{kind: evIPCCall, call: call})
		}
	}
}

// send delivers ev to the main loop, preferring ctx cancellation over a
// blocked channel so an auxiliary goroutine can never wedge errgroup.Wait
// after the main loop has stopped reading.
func (d *Daemon) send(ctx context.Context, ev event) {
	select {
	case d.events <- ev:
	case <-ctx.Done():
	}
}

func pidString(pid *int) string {
	if pid == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *pid)
}
