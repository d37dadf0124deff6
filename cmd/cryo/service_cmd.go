package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cryochamber/cryo/internal/service"
)

func runInstallService(args []string) error {
	fs := flag.NewFlagSet("install-service", flag.ContinueOnError)
	keepAlive := fs.Bool("keep-alive", true, "restart the daemon on any exit, not just a crash")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := workDir()
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	spec := service.Spec{
		LabelPrefix: "daemon",
		Dir:         dir,
		Exe:         exe,
		Args:        []string{"daemon"},
		LogFile:     filepath.Join(dir, "cryo-service.log"),
		KeepAlive:   *keepAlive,
	}

	if err := service.Install(spec); err != nil {
		if errors.Is(err, service.ErrNoService) {
			fmt.Println("Service installation disabled by CRYO_NO_SERVICE.")
			return nil
		}
		return err
	}
	fmt.Printf("Installed service %s for %s\n", service.Label(spec.LabelPrefix, dir), dir)
	return nil
}

func runUninstallService(args []string) error {
	fs := flag.NewFlagSet("uninstall-service", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := workDir()
	if err != nil {
		return err
	}

	removed, err := service.Uninstall("daemon", dir)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Println("No service installed for this directory.")
		return nil
	}
	fmt.Println("Service removed.")
	return nil
}
