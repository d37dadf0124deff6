// Package mailbox implements the atomic file-based inbox/outbox message
// store (spec §4.7): messages/inbox, messages/inbox/archive, and
// messages/outbox, each holding YAML-frontmatter markdown files.
package mailbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cryochamber/cryo/internal/cryoerr"
)

// Message is one inbox or outbox entry.
type Message struct {
	From      string            `yaml:"from"`
	Subject   string            `yaml:"subject"`
	Timestamp time.Time         `yaml:"timestamp"`
	Metadata  map[string]string `yaml:"metadata,omitempty"`
	Body      string            `yaml:"-"`
}

// Entry pairs a stored Message with the filename it was read from, needed
// to archive or re-reference it later.
type Entry struct {
	Filename string
	Message  Message
}

const timestampLayout = "2006-01-02T15-04-05"

// EnsureDirs creates the messages/inbox, messages/inbox/archive, and
// messages/outbox directories if they don't already exist.
func EnsureDirs(projectDir string) error {
	for _, d := range []string{
		filepath.Join(projectDir, "messages", "inbox", "archive"),
		filepath.Join(projectDir, "messages", "outbox"),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return cryoerr.Wrap(cryoerr.KindIO, "create "+d, err)
		}
	}
	return nil
}

func boxDir(projectDir, box string) string {
	return filepath.Join(projectDir, "messages", box)
}

// Write renders msg and atomically stores it under the named box ("inbox"
// or "outbox"): a temp file staged with a UUID-disambiguated name is
// written in the box directory and renamed into place, so readers never
// observe a partial file. Returns the final filename.
func Write(projectDir, box string, msg Message) (string, error) {
	dir := boxDir(projectDir, box)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", cryoerr.Wrap(cryoerr.KindIO, "create "+dir, err)
	}

	filename := fmt.Sprintf("%s_%s.md", msg.Timestamp.Format(timestampLayout), uuid.NewString()[:8])
	content, err := toMarkdown(msg)
	if err != nil {
		return "", cryoerr.Wrap(cryoerr.KindIO, "render message", err)
	}

	stagePath := filepath.Join(dir, ".stage-"+uuid.NewString()+".md")
	if err := os.WriteFile(stagePath, content, 0o644); err != nil {
		return "", cryoerr.Wrap(cryoerr.KindIO, "write staged message", err)
	}
	finalPath := filepath.Join(dir, filename)
	if err := os.Rename(stagePath, finalPath); err != nil {
		os.Remove(stagePath)
		return "", cryoerr.Wrap(cryoerr.KindIO, "rename staged message", err)
	}
	return filename, nil
}

// Read lists all .md messages in the named box, sorted by filename
// (timestamp order), silently skipping malformed entries rather than
// failing the whole read. A missing box directory returns an empty slice.
func Read(projectDir, box string) ([]Entry, error) {
	dir := boxDir(projectDir, box)
	names, err := listMarkdown(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, cryoerr.Wrap(cryoerr.KindIO, "read "+name, err)
		}
		msg, err := parse(data)
		if err != nil {
			continue // malformed message: skip, don't fail the whole read
		}
		entries = append(entries, Entry{Filename: name, Message: msg})
	}
	return entries, nil
}

func listMarkdown(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cryoerr.Wrap(cryoerr.KindIO, "list "+dir, err)
	}

	var names []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Archive moves the named inbox messages into messages/inbox/archive,
// giving at-least-once delivery: a message is archived only after its
// content has been included in an agent prompt (spec §4.7).
func Archive(projectDir string, filenames []string) error {
	inbox := boxDir(projectDir, "inbox")
	archive := filepath.Join(inbox, "archive")
	if err := os.MkdirAll(archive, 0o755); err != nil {
		return cryoerr.Wrap(cryoerr.KindIO, "create "+archive, err)
	}
	for _, name := range filenames {
		src := filepath.Join(inbox, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(src, filepath.Join(archive, name)); err != nil {
			return cryoerr.Wrap(cryoerr.KindIO, "archive "+name, err)
		}
	}
	return nil
}

func toMarkdown(msg Message) ([]byte, error) {
	front := struct {
		From      string            `yaml:"from"`
		Subject   string            `yaml:"subject"`
		Timestamp string            `yaml:"timestamp"`
		Metadata  map[string]string `yaml:"metadata,omitempty"`
	}{
		From:      msg.From,
		Subject:   msg.Subject,
		Timestamp: msg.Timestamp.Format("2006-01-02T15:04:05"),
		Metadata:  msg.Metadata,
	}

	fm, err := yaml.Marshal(front)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(msg.Body)
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func parse(data []byte) (Message, error) {
	content := strings.TrimSpace(string(data))
	if !strings.HasPrefix(content, "---") {
		return Message{}, cryoerr.Wrap(cryoerr.KindProtocol, "parse message", errMissingFrontmatter)
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Message{}, cryoerr.Wrap(cryoerr.KindProtocol, "parse message", errMissingFrontmatterEnd)
	}
	frontRaw := rest[:end]
	body := strings.TrimSpace(rest[end+4:])

	var front struct {
		From      string            `yaml:"from"`
		Subject   string            `yaml:"subject"`
		Timestamp string            `yaml:"timestamp"`
		Metadata  map[string]string `yaml:"metadata"`
	}
	if err := yaml.Unmarshal([]byte(frontRaw), &front); err != nil {
		return Message{}, cryoerr.Wrap(cryoerr.KindProtocol, "parse message frontmatter", err)
	}

	ts, err := time.ParseInLocation("2006-01-02T15:04:05", front.Timestamp, time.Local)
	if err != nil {
		ts = time.Now()
	}

	return Message{
		From:      front.From,
		Subject:   front.Subject,
		Timestamp: ts,
		Metadata:  front.Metadata,
		Body:      body,
	}, nil
}
