package statusserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var (
	wsHeartbeatInterval = 15 * time.Second
)

// handleWS upgrades to a WebSocket and pushes a status snapshot whenever
// NotifyStateChanged fires, plus a periodic heartbeat so a client can
// detect a dead connection without waiting on TCP keepalive. It never reads
// client frames beyond discarding them — the feed is one-directional,
// matching spec §4.12's "never accepts operator commands".
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	changes := s.subscribe()
	defer s.unsubscribe(changes)

	// Drain and discard inbound frames so control frames (ping, pong, close)
	// are processed. No read deadline is set; once the client is gone, the
	// loop below exits on its next failed write.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.pushSnapshot(conn); err != nil {
		return
	}

	heartbeat := time.NewTicker(wsHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := s.baseCtx
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := s.pushSnapshot(conn); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushSnapshot(conn *websocket.Conn) error {
	req, err := http.NewRequest(http.MethodGet, "/status", nil)
	if err != nil {
		return err
	}
	rec := &statusRecorder{header: make(http.Header)}
	s.handleStatus(rec, req)
	if rec.status == 0 {
		rec.status = http.StatusOK
	}

	if err := conn.WriteMessage(websocket.TextMessage, rec.body); err != nil {
		log.Warn("ws_write_failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// statusRecorder captures handleStatus's JSON output without a network
// round-trip, letting /ws reuse the exact /status encoding logic.
type statusRecorder struct {
	header http.Header
	status int
	body   []byte
}

func (r *statusRecorder) Header() http.Header { return r.header }

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return len(b), nil
}

func (r *statusRecorder) WriteHeader(status int) { r.status = status }
