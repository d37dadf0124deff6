package ipc

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServeRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cryo.sock")
	srv, err := Listen(sockPath)
	require.NoError(t, err)
	defer srv.Close()

	go srv.Serve()
	go func() {
		call := <-srv.Calls()
		require.Equal(t, "note", call.Req.Cmd())
		call.Reply <- OKResponse("logged", nil)
	}()

	resp, err := Do(sockPath, Note{Text: "hello"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "logged", resp.Message)
}

func TestServeMalformedRequestDoesNotBlockNextClient(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cryo.sock")
	srv, err := Listen(sockPath)
	require.NoError(t, err)
	defer srv.Close()

	go srv.Serve()
	go func() {
		for call := range srv.Calls() {
			call.Reply <- OKResponse("ok", nil)
		}
	}()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, `"ok":false`)
	conn.Close()

	_, err = Do(sockPath, Time{})
	require.NoError(t, err)
}

func TestListenRemovesStaleSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cryo.sock")
	srv1, err := Listen(sockPath)
	require.NoError(t, err)
	srv1.ln.Close() // simulate unclean shutdown: listener gone, file remains

	srv2, err := Listen(sockPath)
	require.NoError(t, err)
	defer srv2.Close()
}

func TestCloseRemovesSocketFile(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cryo.sock")
	srv, err := Listen(sockPath)
	require.NoError(t, err)
	require.NoError(t, srv.Close())

	_, err = Listen(sockPath)
	require.NoError(t, err)
}

func TestExactlyOneReplyPerCall(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cryo.sock")
	srv, err := Listen(sockPath)
	require.NoError(t, err)
	defer srv.Close()

	go srv.Serve()
	done := make(chan struct{})
	go func() {
		call := <-srv.Calls()
		time.Sleep(10 * time.Millisecond)
		call.Reply <- ErrResponse("rejected")
		close(done)
	}()

	resp, err := Do(sockPath, Receive{})
	require.NoError(t, err)
	require.False(t, resp.OK)
	<-done
}
