package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestRunStatusWithoutInstanceDoesNotError(t *testing.T) {
	chdir(t, t.TempDir())
	require.NoError(t, runStatus(nil))
}

func TestRunLogWithoutLogFileDoesNotError(t *testing.T) {
	chdir(t, t.TempDir())
	require.NoError(t, runLog(nil))
}

func TestRunWakeWithoutDaemonErrors(t *testing.T) {
	chdir(t, t.TempDir())
	err := runWake(nil)
	require.Error(t, err)
}

func TestRunInstallServiceRespectsNoServiceOverride(t *testing.T) {
	t.Setenv("CRYO_NO_SERVICE", "1")
	chdir(t, t.TempDir())
	require.NoError(t, runInstallService(nil))
}

func TestRunSendRequiresText(t *testing.T) {
	chdir(t, t.TempDir())
	err := runSend(nil)
	require.Error(t, err)
}
