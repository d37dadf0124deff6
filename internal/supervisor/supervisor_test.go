package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestStartAndCleanExit(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "cryo-agent.log")
	script := writeScript(t, dir, "#!/bin/sh\necho hi\nexit 0\n")

	p, err := Start(Spec{
		Command:    "sh " + script,
		ProjectDir: dir,
		SocketPath: filepath.Join(dir, ".cryo", "cryo.sock"),
		LogPath:    logPath,
	})
	require.NoError(t, err)

	code, outcome := p.Wait(context.Background(), true)
	require.Equal(t, 0, code)
	require.Equal(t, OutcomeClean, outcome)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "hi")
}

func TestQuickExitClassification(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "#!/bin/sh\nexit 1\n")

	p, err := Start(Spec{
		Command:    "sh " + script,
		ProjectDir: dir,
		SocketPath: filepath.Join(dir, ".cryo", "cryo.sock"),
		LogPath:    filepath.Join(dir, "cryo-agent.log"),
	})
	require.NoError(t, err)

	code, outcome := p.Wait(context.Background(), false)
	require.Equal(t, 1, code)
	require.Equal(t, OutcomeQuickExit, outcome)
}

func TestExitWithoutHibernateClassification(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "#!/bin/sh\nexit 1\n")

	p, err := Start(Spec{
		Command:    "sh " + script,
		ProjectDir: dir,
		SocketPath: filepath.Join(dir, ".cryo", "cryo.sock"),
		LogPath:    filepath.Join(dir, "cryo-agent.log"),
	})
	require.NoError(t, err)
	p.startedAt = time.Now().Add(-6 * time.Second) // simulate a long-lived session

	code, outcome := p.Wait(context.Background(), false)
	require.Equal(t, 1, code)
	require.Equal(t, OutcomeExitWithoutHibernate, outcome)
}

func TestTimeoutClassification(t *testing.T) {
	dir := t.TempDir()
	p, err := Start(Spec{
		Command:    "sleep 10",
		ProjectDir: dir,
		SocketPath: filepath.Join(dir, ".cryo", "cryo.sock"),
		LogPath:    filepath.Join(dir, "cryo-agent.log"),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, outcome := p.Wait(ctx, false)
	require.Equal(t, OutcomeTimeout, outcome)
}

func TestEnvInjection(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "#!/bin/sh\necho \"$CRYO_SOCKET\"\necho \"$API_KEY\"\n")

	p, err := Start(Spec{
		Command:    "sh " + script,
		ProjectDir: dir,
		SocketPath: "/tmp/test.sock",
		Env:        map[string]string{"API_KEY": "secret123"},
		LogPath:    filepath.Join(dir, "cryo-agent.log"),
	})
	require.NoError(t, err)
	p.Wait(context.Background(), true)

	data, err := os.ReadFile(filepath.Join(dir, "cryo-agent.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "/tmp/test.sock")
	require.Contains(t, string(data), "secret123")
}

func TestSocketPathFor(t *testing.T) {
	require.Equal(t, filepath.Join("/proj", ".cryo", "cryo.sock"), SocketPathFor("/proj"))
}
