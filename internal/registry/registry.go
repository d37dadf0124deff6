// Package registry tracks running cryo daemons via a directory of PID
// files, so "cryo ps"-style tooling can enumerate them without scanning
// the whole process table (spec.md's original_source/src/registry.rs;
// spec.md itself doesn't name this component, but it's an ambient part of
// "operators can restart the daemon after reboot" from the OVERVIEW).
package registry

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Entry is one registered daemon.
type Entry struct {
	PID int    `json:"pid"`
	Dir string `json:"dir"`
}

// Dir returns the registry directory, creating it if needed. Prefers
// $XDG_RUNTIME_DIR/cryo (auto-cleaned by the OS on reboot), falling back
// to ~/.cryo/daemons.
func Dir() (string, error) {
	var dir string
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		dir = filepath.Join(runtime, "cryo")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("registry: resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".cryo", "daemons")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("registry: create %s: %w", dir, err)
	}
	return dir, nil
}

func entryFilename(projectDir string) string {
	h := fnv.New64a()
	h.Write([]byte(projectDir))
	return fmt.Sprintf("%016x.json", h.Sum64())
}

// Register writes this daemon's PID entry into the registry.
func Register(projectDir string) error {
	regDir, err := Dir()
	if err != nil {
		return err
	}
	entry := Entry{PID: os.Getpid(), Dir: projectDir}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(regDir, entryFilename(projectDir)), data, 0o644)
}

// Unregister removes this daemon's entry. Best-effort: a missing file is
// not an error.
func Unregister(projectDir string) {
	regDir, err := Dir()
	if err != nil {
		return
	}
	os.Remove(filepath.Join(regDir, entryFilename(projectDir)))
}

// List enumerates registered daemons, auto-cleaning entries whose PID is
// no longer alive or whose file is malformed.
func List() ([]Entry, error) {
	regDir, err := Dir()
	if err != nil {
		return nil, err
	}

	ents, err := os.ReadDir(regDir)
	if err != nil {
		return nil, nil
	}

	var alive []Entry
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(regDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			os.Remove(path)
			continue
		}
		if isPIDAlive(entry.PID) {
			alive = append(alive, entry)
		} else {
			os.Remove(path)
		}
	}
	return alive, nil
}

func isPIDAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
