// Package state implements RuntimeState persistence (timer.json) and PID
// liveness locking — the ephemeral half of the State store component
// (spec §4.6).
package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cryochamber/cryo/internal/cryoerr"
)

// RuntimeState is the daemon's persisted ephemeral state (timer.json).
type RuntimeState struct {
	SessionNumber    uint32     `json:"session_number"`
	PID              *int       `json:"pid,omitempty"`
	RetryCount       uint32     `json:"retry_count"`
	ProviderIndex    uint32     `json:"provider_index"`
	NextWake         *time.Time `json:"next_wake,omitempty"`
	LastReportTime   *time.Time `json:"last_report_time,omitempty"`
	FallbackDeadline *time.Time `json:"fallback_deadline,omitempty"`
	LastExitCode     *uint8     `json:"last_exit_code,omitempty"`

	// CLI overrides, applied on top of Config at start time.
	AgentOverride              *string `json:"agent_override,omitempty"`
	MaxRetriesOverride         *uint32 `json:"max_retries_override,omitempty"`
	MaxSessionDurationOverride *uint64 `json:"max_session_duration_override,omitempty"`
	WatchInboxOverride         *bool   `json:"watch_inbox_override,omitempty"`
}

// Path returns the timer.json path for a project directory.
func Path(projectDir string) string {
	return filepath.Join(projectDir, "timer.json")
}

// Load reads timer.json. A missing file returns a zero-value RuntimeState
// and ok=false; this is the normal case for a never-started project.
func Load(path string) (RuntimeState, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RuntimeState{}, false, nil
		}
		return RuntimeState{}, false, cryoerr.Wrap(cryoerr.KindIO, "read "+path, err)
	}

	var s RuntimeState
	if err := json.Unmarshal(data, &s); err != nil {
		return RuntimeState{}, false, cryoerr.Wrap(cryoerr.KindState, "parse "+path, err)
	}
	return s, true, nil
}

// Save writes RuntimeState atomically: marshal to a temp file in the same
// directory, fsync, then rename over the target, so a partial write can
// never leave invalid JSON on disk.
func Save(path string, s RuntimeState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return cryoerr.Wrap(cryoerr.KindState, "marshal", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".timer-*.json.tmp")
	if err != nil {
		return cryoerr.Wrap(cryoerr.KindIO, "create temp state file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return cryoerr.Wrap(cryoerr.KindIO, "write temp state file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return cryoerr.Wrap(cryoerr.KindIO, "sync temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		return cryoerr.Wrap(cryoerr.KindIO, "close temp state file", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return cryoerr.Wrap(cryoerr.KindIO, "rename state file", err)
	}
	return nil
}

// IsLocked reports whether s.PID identifies either the current process or
// a live process owned by the user (kill(pid, 0) succeeds, or fails with
// EPERM meaning the process exists but is owned by someone else). A dead
// PID is a stale lock and may be overwritten.
func IsLocked(s RuntimeState) bool {
	if s.PID == nil {
		return false
	}
	if *s.PID == os.Getpid() {
		return true
	}
	err := syscall.Kill(*s.PID, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// ApplyOverrides merges CLI-override fields on top of a base config value
// set, returning the effective (agent, maxRetries, maxSessionDuration,
// watchInbox) tuple. Only fields explicitly set in RuntimeState win.
func ApplyOverrides(s RuntimeState, agent string, maxRetries uint32, maxSessionDuration uint64, watchInbox bool) (string, uint32, uint64, bool) {
	if s.AgentOverride != nil {
		agent = *s.AgentOverride
	}
	if s.MaxRetriesOverride != nil {
		maxRetries = *s.MaxRetriesOverride
	}
	if s.MaxSessionDurationOverride != nil {
		maxSessionDuration = *s.MaxSessionDurationOverride
	}
	if s.WatchInboxOverride != nil {
		watchInbox = *s.WatchInboxOverride
	}
	return agent, maxRetries, maxSessionDuration, watchInbox
}
