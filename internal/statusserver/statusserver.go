// Package statusserver implements the optional, read-only HTTP+WebSocket
// observability endpoint (SPEC_FULL.md §4.12), grounded on
// original_source/src/web.rs's axum get_status/get_messages handlers and
// Go-idiomized on the teacher's internal/web.Server scaffolding
// (Config/Server/NewServer/Start/Shutdown, withRecover panic middleware,
// and the subscriber-channel broadcast idiom used for change notification).
//
// The server never accepts operator commands: every route is a GET, and
// nothing it serves can alter daemon state. It exists purely so an operator
// (or a future dashboard) can observe the daemon without shelling into the
// project directory.
package statusserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cryochamber/cryo/internal/logging"
)

var log = logging.ForComponent(logging.CompWeb)

// Config configures a Server instance.
type Config struct {
	Host       string
	Port       uint16
	ProjectDir string
}

// Server is the read-only status/messages/ws HTTP server for one project
// directory.
type Server struct {
	cfg        Config
	httpServer *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}
}

// NewServer builds a Server bound to cfg.Host:cfg.Port, wired with the
// /status, /messages, and /ws routes.
func NewServer(cfg Config) *Server {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s := &Server{
		cfg:  cfg,
		subs: make(map[chan struct{}]struct{}),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/messages", s.handleMessages)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           withRecover(mux),
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Addr returns the server's configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Handler returns the configured HTTP handler, used by tests to exercise
// routes without binding a real listener.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens and serves until Shutdown is called or a fatal error
// occurs. Returns nil on graceful shutdown.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, falling back to a forced close if
// a long-lived /ws connection blocks the graceful path past ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("statusserver: graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

// NotifyStateChanged wakes every subscribed /ws connection so it can push a
// fresh status snapshot. The daemon loop calls this on every state
// transition (session start/end, wake, hibernate). A nil Server is a valid
// no-op receiver so callers don't need to nil-check an optionally-enabled
// server.
func (s *Server) NotifyStateChanged() {
	if s == nil {
		return
	}
	s.subsMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.subsMu.Unlock()
}

func (s *Server) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan struct{}) {
	s.subsMu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.subsMu.Unlock()
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic", slog.String("recover", fmt.Sprintf("%v", rec)), slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
