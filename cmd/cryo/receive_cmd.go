package main

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/cryochamber/cryo/internal/ipc"
	"github.com/cryochamber/cryo/internal/supervisor"
)

type receivedMessage struct {
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Timestamp string `json:"timestamp"`
	Body      string `json:"body"`
}

func runReceive(args []string) error {
	fs := flag.NewFlagSet("receive", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := workDir()
	if err != nil {
		return err
	}

	resp, err := ipc.Do(supervisor.SocketPathFor(dir), ipc.Receive{})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Message)
	}

	var msgs []receivedMessage
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &msgs); err != nil {
			return err
		}
	}

	if len(msgs) == 0 {
		fmt.Println("No pending messages.")
		return nil
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n%s\n\n", m.Timestamp, m.From, m.Subject, m.Body)
	}
	return nil
}
