// Command cryo is the cryochamber CLI entrypoint. Dispatch follows the
// teacher's cmd/agent-deck/main.go style: a flat os.Args[1] switch into
// one handler function per subcommand, rather than a cobra/urfave tree.
//
// Per SPEC_FULL.md's DOMAIN STACK decision, spec.md §6's CLI surface is
// "out of scope for implementation; listed here for the integration
// contract" — only the thin functional slice needed to exercise the
// daemon, IPC client, and service shim is implemented here: daemon,
// status, send, receive, wake, log, install-service, uninstall-service.
// Rich operator ergonomics (init templates, prompt composition, watch)
// remain out of scope.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("cryo v%s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	case "daemon":
		err = runDaemon(args[1:])
	case "status":
		err = runStatus(args[1:])
	case "log":
		err = runLog(args[1:])
	case "wake":
		err = runWake(args[1:])
	case "send":
		err = runSend(args[1:])
	case "receive":
		err = runReceive(args[1:])
	case "install-service":
		err = runInstallService(args[1:])
	case "uninstall-service":
		err = runUninstallService(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "cryo: unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "cryo: %s\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cryo - long-term AI agent task scheduler daemon

Usage:
  cryo daemon                 run the daemon in the foreground for this directory
  cryo status                 show session number, lock state, and next wake
  cryo log                    print the project's event log
  cryo wake                   force an immediate wake (SIGUSR1 to the running daemon)
  cryo send <text>            queue an outbox message as if the agent sent it
  cryo receive                print pending inbox messages
  cryo install-service        install the OS service (launchd/systemd) for this directory
  cryo uninstall-service      remove the installed OS service for this directory
  cryo version                print the version
  cryo help                   print this message`)
}

func workDir() (string, error) {
	return os.Getwd()
}
