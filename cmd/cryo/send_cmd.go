package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/cryochamber/cryo/internal/ipc"
	"github.com/cryochamber/cryo/internal/supervisor"
)

// runSend queues an outbox message via the running daemon's IPC socket, the
// same request an agent child issues over CRYO_SOCKET (spec §4.4) — useful
// for operators exercising the mailbox without an agent attached.
func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	subject := fs.String("subject", "", "message subject")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: cryo send [--subject TEXT] <message text>")
	}
	text := strings.Join(fs.Args(), " ")

	dir, err := workDir()
	if err != nil {
		return err
	}

	req := ipc.Send{Text: text}
	if *subject != "" {
		req.Subject = subject
	}

	resp, err := ipc.Do(supervisor.SocketPathFor(dir), req)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Message)
	}
	fmt.Println(resp.Message)
	return nil
}
