// Package service installs and removes the OS user-service that runs
// `cryo daemon` at boot: a launchd agent on Darwin, a systemd --user unit
// on Linux (spec.md §9 "Service shim"). Grounded on
// original_source/src/service.rs, split per Go convention into one file
// per platform (service_darwin.go, service_linux.go, service_other.go)
// dispatching through package-level functions rather than an interface —
// only one of the three ever compiles into a given binary, so there's
// nothing to dispatch over at runtime.
package service

import (
	"fmt"
	"hash/fnv"
	"os"
)

// Spec describes the service to install.
type Spec struct {
	// LabelPrefix distinguishes the service kind, e.g. "daemon" or "gh-sync".
	LabelPrefix string
	// Dir is the project directory the service runs against; it also
	// seeds the service label so distinct projects never collide.
	Dir string
	// Exe is the absolute path to the cryo binary.
	Exe string
	// Args are the arguments passed to Exe, e.g. []string{"daemon", Dir}.
	Args []string
	// LogFile receives the service's stdout and stderr.
	LogFile string
	// KeepAlive restarts the service on any exit, not just a crash.
	KeepAlive bool
}

// ErrNoService is returned by Install when CRYO_NO_SERVICE is set, so
// callers can report "service installation disabled" instead of a
// platform error.
var ErrNoService = fmt.Errorf("service: installation disabled by CRYO_NO_SERVICE")

// ErrUnsupportedPlatform is returned on platforms with no service manager
// wired up (anything but Darwin and Linux).
var ErrUnsupportedPlatform = fmt.Errorf("service: OS service management is not supported on this platform")

// Label derives a stable, collision-resistant service identifier from a
// prefix and the project directory, e.g. "com.cryo.daemon.<hash>" —
// matches original_source/src/service.rs's service_label, hex-hashed with
// fnv64a the same way internal/registry names its PID files.
func Label(labelPrefix, dir string) string {
	h := fnv.New64a()
	h.Write([]byte(dir))
	return fmt.Sprintf("com.cryo.%s.%016x", labelPrefix, h.Sum64())
}

// Install writes and activates the platform service unit. A no-op
// CRYO_NO_SERVICE environment variable short-circuits to ErrNoService so
// operators who manage the process themselves never have units written
// under them.
func Install(spec Spec) error {
	if os.Getenv("CRYO_NO_SERVICE") != "" {
		return ErrNoService
	}
	return install(spec)
}

// Uninstall removes the service unit, reporting whether one was found.
func Uninstall(labelPrefix, dir string) (bool, error) {
	return uninstall(labelPrefix, dir)
}

// IsInstalled reports whether a service unit for labelPrefix/dir exists.
func IsInstalled(labelPrefix, dir string) bool {
	return isInstalled(labelPrefix, dir)
}
