package main

import (
	"flag"
	"fmt"
	"syscall"

	"github.com/cryochamber/cryo/internal/state"
)

// runWake sends the forced-wake signal (SIGUSR1) to the running daemon,
// mirroring spec.md §4's "forced (signal)" wake kind — the redesigned
// in-process scheduler's equivalent of original_source/src/main.rs's
// cmd_wake, which instead re-invoked the CLI directly under the old
// per-wake-process architecture.
func runWake(args []string) error {
	fs := flag.NewFlagSet("wake", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := workDir()
	if err != nil {
		return err
	}

	st, ok, err := state.Load(state.Path(dir))
	if err != nil {
		return err
	}
	if !ok || !state.IsLocked(st) {
		return fmt.Errorf("no running daemon found in %s", dir)
	}

	if err := syscall.Kill(*st.PID, syscall.SIGUSR1); err != nil {
		return fmt.Errorf("signal daemon pid %d: %w", *st.PID, err)
	}
	fmt.Println("Forced wake signal sent.")
	return nil
}
