package statusserver

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func wsURL(baseURL, path string) string {
	return "ws://" + strings.TrimPrefix(baseURL, "http://") + path
}

func TestWSPushesInitialSnapshotOnConnect(t *testing.T) {
	s, _ := newTestServer(t)

	httpSrv := httptest.NewServer(s.Handler())
	defer httpSrv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(httpSrv.URL, "/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got statusPayload
	require.NoError(t, json.Unmarshal(msg, &got))
	require.False(t, got.Running)
}

func TestWSPushesOnNotify(t *testing.T) {
	s, dir := newTestServer(t)

	httpSrv := httptest.NewServer(s.Handler())
	defer httpSrv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(httpSrv.URL, "/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage() // initial snapshot
	require.NoError(t, err)

	pid := 7
	require.NoError(t, saveRunningState(dir, pid, 3))
	s.NotifyStateChanged()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got statusPayload
	require.NoError(t, json.Unmarshal(msg, &got))
	require.Equal(t, uint32(3), got.Session)
}
