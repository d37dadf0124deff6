package daemon

import "github.com/cryochamber/cryo/internal/ipc"

// eventKind distinguishes the daemon's four input sources, all funneled
// through one channel so the main loop never has more than two suspension
// points (spec §5): the idle-wait select and the running-session select.
type eventKind int

const (
	evInboxChanged eventKind = iota
	evForcedWake
	evShutdown
	evIPCCall
)

// event is one value delivered to the daemon's single events channel by an
// auxiliary goroutine (socket acceptor, inbox watcher, or signal forwarder).
type event struct {
	kind eventKind
	call ipc.Call
}
