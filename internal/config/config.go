// Package config loads and saves the daemon's persistent configuration
// (cryo.toml), the static half of the State store component (spec §4.6).
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/cryochamber/cryo/internal/cryoerr"
)

// Provider is a named set of environment variables injected into the
// agent child, used to rotate credentials across sessions.
type Provider struct {
	Name string            `toml:"name"`
	Env  map[string]string `toml:"env"`
}

// Config is the persistent, human-edited cryo.toml.
type Config struct {
	Agent               string     `toml:"agent"`
	MaxRetries          uint32     `toml:"max_retries"`
	MaxSessionDuration  uint64     `toml:"max_session_duration"`
	WatchInbox          bool       `toml:"watch_inbox"`
	RotateOn            string     `toml:"rotate_on"`
	Providers           []Provider `toml:"providers"`
	FallbackAlert       string     `toml:"fallback_alert"`
	ReportIntervalHours uint64     `toml:"report_interval_hours"`
	ReportTimeOfDay     string     `toml:"report_time_of_day"`
	WebHost             string     `toml:"web_host"`
	WebPort             uint16     `toml:"web_port"`

	// SessionIndexEnabled and StatusServerEnabled are SPEC_FULL additions
	// (see SPEC_FULL.md §3): both default off and are purely additive —
	// disabling either has no effect on any spec-defined invariant.
	SessionIndexEnabled bool `toml:"session_index_enabled"`
	StatusServerEnabled bool `toml:"status_server_enabled"`
}

// Default returns a Config populated with the documented field defaults,
// matching the reference implementation's default_* functions.
func Default() Config {
	return Config{
		Agent:               "opencode",
		MaxRetries:          5,
		MaxSessionDuration:  0,
		WatchInbox:          true,
		RotateOn:            "never",
		Providers:           nil,
		FallbackAlert:       "notify",
		ReportIntervalHours: 24,
		ReportTimeOfDay:     "09:00",
		WebHost:             "127.0.0.1",
		WebPort:             3945,
		SessionIndexEnabled: false,
		StatusServerEnabled: false,
	}
}

// Path returns the cryo.toml path for a project directory.
func Path(projectDir string) string {
	return filepath.Join(projectDir, "cryo.toml")
}

// Load reads cryo.toml, applying documented defaults first so missing
// fields fall back silently (spec §4.6 "Load tolerance"). Unknown keys in
// the file are accepted without error. A missing file is not an error —
// callers decide whether a fresh project may proceed without one.
func Load(path string) (Config, bool, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, false, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, false, cryoerr.Wrap(cryoerr.KindConfig, "decode "+path, err)
	}
	return cfg, true, nil
}

// Save writes cfg to path, pretty-printed.
func Save(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return cryoerr.Wrap(cryoerr.KindIO, "create "+path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return cryoerr.Wrap(cryoerr.KindConfig, "encode "+path, err)
	}
	return nil
}
