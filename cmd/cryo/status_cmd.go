package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/cryochamber/cryo/internal/config"
	"github.com/cryochamber/cryo/internal/eventlog"
	"github.com/cryochamber/cryo/internal/state"
)

// runStatus prints a human-readable snapshot, grounded on
// original_source/src/main.rs's cmd_status — but reporting the redesigned
// loop's fields (NextWake, RetryCount, FallbackDeadline) instead of the
// original's OS-timer IDs, since this daemon schedules wake/fallback
// in-process rather than via launchd/cron jobs.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
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
	if !ok {
		fmt.Println("No cryochamber instance in this directory.")
		return nil
	}

	cfg, _, err := config.Load(config.Path(dir))
	if err != nil {
		cfg = config.Default()
	}

	agent := cfg.Agent
	if st.AgentOverride != nil {
		agent = *st.AgentOverride
	}

	fmt.Printf("Agent: %s\n", agent)
	fmt.Printf("Session: %d\n", st.SessionNumber)
	fmt.Printf("Running: %t\n", state.IsLocked(st))
	if st.PID != nil {
		fmt.Printf("Locked by PID: %d\n", *st.PID)
	} else {
		fmt.Println("Locked by PID: none")
	}
	fmt.Printf("Retry count: %d\n", st.RetryCount)
	if st.NextWake != nil {
		fmt.Printf("Next wake: %s\n", st.NextWake.Format("2006-01-02T15:04"))
	} else {
		fmt.Println("Next wake: none")
	}
	if st.FallbackDeadline != nil {
		fmt.Printf("Fallback deadline: %s\n", st.FallbackDeadline.Format("2006-01-02T15:04"))
	}
	if st.LastExitCode != nil {
		fmt.Printf("Last exit code: %d\n", *st.LastExitCode)
	}

	sessions, err := eventlog.ScanSessions(eventlogPath(dir))
	if err == nil && len(sessions) > 0 {
		last := sessions[len(sessions)-1]
		fmt.Println("\n--- Latest session ---")
		fmt.Printf("Session #%d (%s)\n", last.Number, last.Timestamp)
		for _, ev := range last.Events {
			fmt.Printf("[%s] %s\n", ev.Time, ev.Raw)
		}
	}

	return nil
}

func eventlogPath(dir string) string {
	return filepath.Join(dir, "cryo.log")
}
