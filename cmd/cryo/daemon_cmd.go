package main

import (
	"context"
	"flag"

	"github.com/cryochamber/cryo/internal/daemon"
)

func runDaemon(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := workDir()
	if err != nil {
		return err
	}

	return daemon.New(dir).Run(context.Background())
}
