// Package eventlog implements the append-only session event log writer
// (spec §4.5): strict session framing with timestamped structured events,
// safe against concurrent external readers (tail -f) and always finalized
// even on panic/error paths.
package eventlog

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// SessionStartPrefix opens a session frame; SessionEnd and Interrupted
// close one, the latter only on an unclean shutdown.
const (
	SessionStartPrefix = "--- CRYO SESSION"
	SessionEnd         = "--- CRYO END ---"
	SessionInterrupted = "--- CRYO INTERRUPTED ---"
)

// Field is one KEY=VALUE pair, or a bare quoted value when Key is empty,
// per the event line grammar `KIND[: KEY=VALUE | "quoted"]*`.
type Field struct {
	Key   string
	Value string
}

// KV renders as key=value (value is quoted if it contains whitespace or a
// double quote).
func KV(key, value string) Field { return Field{Key: key, Value: value} }

// Bare renders as a standalone "quoted" value with no key.
func Bare(value string) Field { return Field{Value: value} }

func (f Field) render() string {
	needsQuote := strings.ContainsAny(f.Value, " \t\"")
	val := f.Value
	if needsQuote || f.Key == "" {
		val = `"` + escapeQuotes(f.Value) + `"`
	}
	if f.Key == "" {
		return val
	}
	return f.Key + "=" + val
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// FormatEvent renders one event line body (without the leading timestamp),
// e.g. "hibernate: wake=2026-03-01T09:00:00Z complete=false".
func FormatEvent(kind string, fields ...Field) string {
	if len(fields) == 0 {
		return kind
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.render()
	}
	return kind + ": " + strings.Join(parts, " ")
}

// Writer appends session-framed events to cryo.log. A Writer must always
// be finalized via Finish, or via Abort (typically deferred) if the
// caller exits without reaching a terminal event — Abort writes
// "CRYO INTERRUPTED" exactly once and is a no-op after Finish.
type Writer struct {
	file          *os.File
	finished      bool
	sessionNumber uint32
	index         Indexer
	offset        int64
}

// Begin opens (or creates) logPath for append and writes the session
// header: the SESSION line, task, agent command, and inbox summary.
func Begin(logPath string, sessionNumber uint32, task, agentCmd string, inboxFilenames []string, now time.Time) (*Writer, error) {
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", logPath, err)
	}

	w := &Writer{file: file, sessionNumber: sessionNumber}

	if _, err := fmt.Fprintf(file, "%s %d | %s ---\n", SessionStartPrefix, sessionNumber, now.UTC().Format("2006-01-02T15:04:05Z")); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("eventlog: write header: %w", err)
	}
	if _, err := fmt.Fprintf(file, "task: %s\n", task); err != nil {
		_ = file.Close()
		return nil, err
	}
	if _, err := fmt.Fprintf(file, "agent: %s\n", agentCmd); err != nil {
		_ = file.Close()
		return nil, err
	}

	var inboxLine string
	if len(inboxFilenames) == 0 {
		inboxLine = "inbox: 0 messages"
	} else {
		inboxLine = fmt.Sprintf("inbox: %d messages (%s)", len(inboxFilenames), strings.Join(inboxFilenames, ", "))
	}
	if _, err := fmt.Fprintln(file, inboxLine); err != nil {
		_ = file.Close()
		return nil, err
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("eventlog: sync header: %w", err)
	}

	return w, nil
}

// LogEvent appends one timestamped event line and flushes immediately so
// concurrent readers (tail -f) always see whole lines.
func (w *Writer) LogEvent(now time.Time, kind string, fields ...Field) error {
	body := FormatEvent(kind, fields...)
	line := fmt.Sprintf("[%s] %s\n", now.Format("15:04:05"), body)
	if _, err := w.file.WriteString(line); err != nil {
		return fmt.Errorf("eventlog: write event: %w", err)
	}
	w.indexEvent(now, kind, body)
	return w.file.Sync()
}

// Finish logs a final event then closes the session frame with
// "--- CRYO END ---". After Finish, Abort is a no-op.
func (w *Writer) Finish(now time.Time, finalKind string, fields ...Field) error {
	if err := w.LogEvent(now, finalKind, fields...); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w.file, SessionEnd); err != nil {
		return fmt.Errorf("eventlog: write end marker: %w", err)
	}
	if _, err := fmt.Fprintln(w.file); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.finished = true
	w.indexSessionEnded(now, finalKind)
	return w.file.Close()
}

// Abort writes "--- CRYO INTERRUPTED ---" if Finish was never called. Safe
// to call multiple times and safe to defer unconditionally right after
// Begin succeeds.
func (w *Writer) Abort() {
	if w == nil || w.finished {
		return
	}
	w.finished = true
	_, _ = fmt.Fprintln(w.file, SessionInterrupted)
	_, _ = fmt.Fprintln(w.file)
	_ = w.file.Sync()
	w.indexSessionEnded(time.Now(), "interrupted")
	_ = w.file.Close()
}
