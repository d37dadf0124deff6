package statusserver

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"sort"

	"github.com/cryochamber/cryo/internal/config"
	"github.com/cryochamber/cryo/internal/eventlog"
	"github.com/cryochamber/cryo/internal/mailbox"
	"github.com/cryochamber/cryo/internal/state"
)

// statusPayload mirrors original_source/src/web.rs's get_status JSON shape,
// extended with the RuntimeState fields SPEC_FULL.md §4.12 calls out
// (next wake, retry count) that the original only exposed via `cryo status`.
type statusPayload struct {
	Running      bool    `json:"running"`
	Session      uint32  `json:"session"`
	Agent        string  `json:"agent"`
	LogTail      string  `json:"log_tail"`
	NextWake     *string `json:"next_wake,omitempty"`
	RetryCount   uint32  `json:"retry_count"`
	LastExitCode *uint8  `json:"last_exit_code,omitempty"`
}

// messagePayload mirrors web.rs's message_to_json.
type messagePayload struct {
	Direction string `json:"direction"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

const messageTimestampLayout = "2006-01-02T15:04:05"

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, _, err := config.Load(config.Path(s.cfg.ProjectDir))
	if err != nil {
		cfg = config.Default()
	}

	payload := statusPayload{Agent: cfg.Agent}

	if st, ok, err := state.Load(state.Path(s.cfg.ProjectDir)); err == nil && ok {
		payload.Running = state.IsLocked(st)
		payload.Session = st.SessionNumber
		payload.RetryCount = st.RetryCount
		if st.AgentOverride != nil {
			payload.Agent = *st.AgentOverride
		}
		if st.NextWake != nil {
			formatted := st.NextWake.Format(messageTimestampLayout)
			payload.NextWake = &formatted
		}
		payload.LastExitCode = st.LastExitCode
	}

	payload.LogTail = latestSessionTail(eventlogPath(s.cfg.ProjectDir))

	writeJSON(w, payload)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var out []messagePayload
	if inbox, err := mailbox.Read(s.cfg.ProjectDir, "inbox"); err == nil {
		for _, e := range inbox {
			out = append(out, toMessagePayload(e.Message, "inbox"))
		}
	}
	if outbox, err := mailbox.Read(s.cfg.ProjectDir, "outbox"); err == nil {
		for _, e := range outbox {
			out = append(out, toMessagePayload(e.Message, "outbox"))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if out == nil {
		out = []messagePayload{}
	}

	writeJSON(w, out)
}

func toMessagePayload(m mailbox.Message, direction string) messagePayload {
	return messagePayload{
		Direction: direction,
		From:      m.From,
		Subject:   m.Subject,
		Body:      m.Body,
		Timestamp: m.Timestamp.Format(messageTimestampLayout),
	}
}

func eventlogPath(projectDir string) string {
	return filepath.Join(projectDir, "cryo.log")
}

// latestSessionTail returns a short summary line for the most recent
// session, matching web.rs's log::read_latest_session's role (a one-line
// digest, not the whole log) without needing a new eventlog export: it
// reuses ScanSessions, already needed for orphan detection.
func latestSessionTail(logPath string) string {
	sessions, err := eventlog.ScanSessions(logPath)
	if err != nil || len(sessions) == 0 {
		return ""
	}
	last := sessions[len(sessions)-1]
	if len(last.Events) == 0 {
		return ""
	}
	return last.Events[len(last.Events)-1].Raw
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
