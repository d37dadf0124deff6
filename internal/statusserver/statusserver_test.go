package statusserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryochamber/cryo/internal/config"
	"github.com/cryochamber/cryo/internal/mailbox"
	"github.com/cryochamber/cryo/internal/state"
)

func saveRunningState(dir string, pid int, sessionNumber uint32) error {
	return state.Save(state.Path(dir), state.RuntimeState{
		SessionNumber: sessionNumber,
		PID:           &pid,
	})
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, mailbox.EnsureDirs(dir))
	s := NewServer(Config{Host: "127.0.0.1", Port: 0, ProjectDir: dir})
	return s, dir
}

func TestStatusNoDaemonRunning(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got statusPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.False(t, got.Running)
	require.Equal(t, uint32(0), got.Session)
	require.Equal(t, config.Default().Agent, got.Agent)
}

func TestStatusReflectsRuntimeState(t *testing.T) {
	s, dir := newTestServer(t)

	pid := 1
	next := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, state.Save(state.Path(dir), state.RuntimeState{
		SessionNumber: 4,
		PID:           &pid,
		RetryCount:    2,
		NextWake:      &next,
	}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got statusPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, uint32(4), got.Session)
	require.Equal(t, uint32(2), got.RetryCount)
	require.NotNil(t, got.NextWake)
}

func TestStatusMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMessagesEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[]`, rr.Body.String())
}

func TestMessagesMergedAndSortedByTimestamp(t *testing.T) {
	s, dir := newTestServer(t)

	_, err := mailbox.Write(dir, "inbox", mailbox.Message{
		From: "human", Subject: "Hello", Timestamp: time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC), Body: "Hi agent",
	})
	require.NoError(t, err)
	_, err = mailbox.Write(dir, "outbox", mailbox.Message{
		From: "agent", Subject: "Reply", Timestamp: time.Date(2026, 2, 25, 10, 5, 0, 0, time.UTC), Body: "Got it",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got []messagePayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, "inbox", got[0].Direction)
	require.Equal(t, "outbox", got[1].Direction)
}

func TestNotifyStateChangedOnNilServerIsNoop(t *testing.T) {
	var s *Server
	require.NotPanics(t, func() { s.NotifyStateChanged() })
}

func TestSubscribeUnsubscribe(t *testing.T) {
	s, _ := newTestServer(t)

	ch := s.subscribe()
	s.NotifyStateChanged()
	select {
	case <-ch:
	default:
		t.Fatal("expected notification on subscribed channel")
	}

	s.unsubscribe(ch)
	_, ok := <-ch
	require.False(t, ok)
}
