// Package inboxwatcher watches messages/inbox/ for new message files and
// delivers a coalesced wake signal (spec §4, Inbox watcher component).
package inboxwatcher

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cryochamber/cryo/internal/logging"
)

var log = logging.ForComponent(logging.CompInbox)

const debounce = 200 * time.Millisecond

// Watcher watches one inbox directory and sends a signal on Changed() for
// every burst of new .md files, coalesced within the debounce window.
type Watcher struct {
	watcher *fsnotify.Watcher
	changed chan struct{}
	done    chan struct{}
}

// Start begins watching inboxDir. The directory must already exist.
func Start(inboxDir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(inboxDir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher: fw,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Changed delivers a value each time one or more new messages have settled
// into the inbox. Sends are non-blocking and coalesced: a consumer that is
// slow to drain never backs up more than one pending wake.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changed
}

// Stop shuts the watcher down. Safe to call once.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) run() {
	var timer *time.Timer
	var mu sync.Mutex
	pending := false

	fire := func() {
		mu.Lock()
		if !pending {
			mu.Unlock()
			return
		}
		pending = false
		mu.Unlock()

		select {
		case w.changed <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".md" {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}

			mu.Lock()
			pending = true
			mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, fire)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("inbox_watch_error", slog.String("error", err.Error()))
		}
	}
}
