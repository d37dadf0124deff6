package eventlog

import (
	"time"

	"github.com/cryochamber/cryo/internal/logging"
)

var indexLog = logging.ForComponent(logging.CompIndex)

// Indexer receives a best-effort copy of every session event as it's
// written to cryo.log. internal/sessionindex.DB implements this to
// maintain its derived SQLite tables; failures here are logged and never
// propagate — the text log is the only thing a Writer is required to get
// right (spec.md §8).
type Indexer interface {
	SessionStarted(sessionNumber uint32, startedAt time.Time, providerIndex int) error
	Event(sessionNumber uint32, offset int64, timestamp time.Time, kind, rawLine string) error
	SessionEnded(sessionNumber uint32, endedAt time.Time, outcome string) error
}

// WithIndex attaches an Indexer that mirrors this session's events,
// recording the session-start row immediately. providerIndex is whatever
// the daemon's retry/rotation state had active when the session began.
func (w *Writer) WithIndex(idx Indexer, providerIndex int, now time.Time) *Writer {
	w.index = idx
	if idx != nil {
		if err := idx.SessionStarted(w.sessionNumber, now, providerIndex); err != nil {
			indexLog.Warn("session_index_start_failed", "error", err.Error())
		}
	}
	return w
}

func (w *Writer) indexEvent(now time.Time, kind, rawLine string) {
	if w.index == nil {
		return
	}
	if err := w.index.Event(w.sessionNumber, w.offset, now, kind, rawLine); err != nil {
		indexLog.Warn("session_index_event_failed", "error", err.Error())
	}
	w.offset++
}

func (w *Writer) indexSessionEnded(now time.Time, outcome string) {
	if w.index == nil {
		return
	}
	if err := w.index.SessionEnded(w.sessionNumber, now, outcome); err != nil {
		indexLog.Warn("session_index_end_failed", "error", err.Error())
	}
}
