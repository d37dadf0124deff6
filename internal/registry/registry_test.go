package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	projectDir := filepath.Join(t.TempDir(), "myproject")
	require.NoError(t, Register(projectDir))

	entries, err := List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, os.Getpid(), entries[0].PID)
	require.Equal(t, projectDir, entries[0].Dir)

	Unregister(projectDir)
	entries, err = List()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestListCleansStaleEntries(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	regDir, err := Dir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(regDir, "stale.json"), []byte(`{"pid":999999,"dir":"/gone"}`), 0o644))

	entries, err := List()
	require.NoError(t, err)
	require.Empty(t, entries)

	_, statErr := os.Stat(filepath.Join(regDir, "stale.json"))
	require.True(t, os.IsNotExist(statErr))
}

func TestListCleansMalformedEntries(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	regDir, err := Dir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(regDir, "bad.json"), []byte("not json"), 0o644))

	_, err = List()
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(regDir, "bad.json"))
	require.True(t, os.IsNotExist(statErr))
}

func TestDirPrefersXDGRuntimeDir(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	dir, err := Dir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(runtimeDir, "cryo"), dir)
}
