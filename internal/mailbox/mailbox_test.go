package mailbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureDirsCreatesFullTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDirs(dir))

	require.DirExists(t, filepath.Join(dir, "messages", "inbox", "archive"))
	require.DirExists(t, filepath.Join(dir, "messages", "outbox"))
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDirs(dir))

	msg := Message{
		From:      "operator",
		Subject:   "status check",
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local),
		Metadata:  map[string]string{"priority": "high"},
		Body:      "Please check in when you wake up.",
	}
	filename, err := Write(dir, "inbox", msg)
	require.NoError(t, err)
	require.NotEmpty(t, filename)

	entries, err := Read(dir, "inbox")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filename, entries[0].Filename)
	require.Equal(t, "operator", entries[0].Message.From)
	require.Equal(t, "status check", entries[0].Message.Subject)
	require.Equal(t, "high", entries[0].Message.Metadata["priority"])
	require.Equal(t, "Please check in when you wake up.", entries[0].Message.Body)
	require.True(t, msg.Timestamp.Equal(entries[0].Message.Timestamp))
}

func TestWriteLeavesNoStagingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDirs(dir))

	_, err := Write(dir, "outbox", Message{Subject: "x", Timestamp: time.Now(), Body: "y"})
	require.NoError(t, err)

	ents, err := os.ReadDir(filepath.Join(dir, "messages", "outbox"))
	require.NoError(t, err)
	for _, e := range ents {
		require.False(t, len(e.Name()) > 6 && e.Name()[:6] == ".stage", "staging file must not survive rename")
	}
}

func TestReadMissingBoxIsEmpty(t *testing.T) {
	dir := t.TempDir()
	entries, err := Read(dir, "inbox")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestReadSortedByFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDirs(dir))

	early := time.Date(2026, 1, 1, 8, 0, 0, 0, time.Local)
	late := time.Date(2026, 1, 1, 9, 0, 0, 0, time.Local)
	_, err := Write(dir, "inbox", Message{Subject: "second", Timestamp: late, Body: "b"})
	require.NoError(t, err)
	_, err = Write(dir, "inbox", Message{Subject: "first", Timestamp: early, Body: "a"})
	require.NoError(t, err)

	entries, err := Read(dir, "inbox")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "first", entries[0].Message.Subject)
	require.Equal(t, "second", entries[1].Message.Subject)
}

func TestReadSkipsMalformedMessages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDirs(dir))

	bad := filepath.Join(dir, "messages", "inbox", "2026-01-01T00-00-00_bad.md")
	require.NoError(t, os.WriteFile(bad, []byte("not a message at all"), 0o644))

	_, err := Write(dir, "inbox", Message{Subject: "ok", Timestamp: time.Now(), Body: "fine"})
	require.NoError(t, err)

	entries, err := Read(dir, "inbox")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ok", entries[0].Message.Subject)
}

func TestArchiveMovesMessages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDirs(dir))

	filename, err := Write(dir, "inbox", Message{Subject: "x", Timestamp: time.Now(), Body: "y"})
	require.NoError(t, err)

	require.NoError(t, Archive(dir, []string{filename}))

	remaining, err := Read(dir, "inbox")
	require.NoError(t, err)
	require.Empty(t, remaining)

	archived, err := Read(dir, filepath.Join("inbox", "archive"))
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, "x", archived[0].Message.Subject)
}

func TestArchiveIgnoresMissingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDirs(dir))
	require.NoError(t, Archive(dir, []string{"does-not-exist.md"}))
}
