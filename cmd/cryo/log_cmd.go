package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

func runLog(args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := workDir()
	if err != nil {
		return err
	}

	contents, err := os.ReadFile(eventlogPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("No log file found.")
			return nil
		}
		return err
	}
	fmt.Print(string(contents))
	return nil
}
