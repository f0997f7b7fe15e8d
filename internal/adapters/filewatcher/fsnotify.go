// Package filewatcher provides file system monitoring adapters.
// Clean Architecture: Adapter implementing ports.FileWatcher.
package filewatcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// DefaultDebounce is how long a path must stay quiet before its event is emitted.
const DefaultDebounce = 300 * time.Millisecond

// FSNotifyWatcher implements ports.FileWatcher using fsnotify. Directories are
// watched recursively, including ones created after Watch starts. Bursts of
// events for one path are coalesced into a single event.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions []string // File extensions to watch (e.g., ".pdf", ".txt")
	debounce   time.Duration
	log        logrus.FieldLogger
}

// NewFSNotifyWatcher creates a new file watcher.
func NewFSNotifyWatcher(extensions []string, debounce time.Duration, log logrus.FieldLogger) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = []string{".pdf", ".txt", ".md"}
	}
	if debounce < 0 {
		debounce = 0
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &FSNotifyWatcher{
		watcher:    w,
		extensions: extensions,
		debounce:   debounce,
		log:        log.WithField("component", "filewatcher"),
	}, nil
}

// Watch starts monitoring dir and its subdirectories and emits events. The
// channel is closed when ctx is done or the watcher is stopped.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.addTree(dir); err != nil {
		return nil, err
	}

	events := make(chan ports.FileEvent, 100)
	go w.loop(ctx, events)
	return events, nil
}

func (w *FSNotifyWatcher) loop(ctx context.Context, events chan<- ports.FileEvent) {
	defer close(events)

	pending := make(map[string]ports.FileOperation)
	due := make(map[string]time.Time)

	var tick <-chan time.Time
	if w.debounce > 0 {
		ticker := time.NewTicker(w.debounce / 3)
		defer ticker.Stop()
		tick = ticker.C
	}

	emit := func(path string, op ports.FileOperation) bool {
		select {
		case events <- ports.FileEvent{Path: path, Operation: op}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick:
			for path, at := range due {
				if now.Before(at) {
					continue
				}
				op := pending[path]
				delete(pending, path)
				delete(due, path)
				if !emit(path, op) {
					return
				}
			}
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			path, op, ok := w.translate(event)
			if !ok {
				continue
			}
			if w.debounce == 0 {
				if !emit(path, op) {
					return
				}
				continue
			}
			if prev, seen := pending[path]; seen && prev == ports.FileCreated && op == ports.FileModified {
				op = ports.FileCreated
			}
			pending[path] = op
			due[path] = time.Now().Add(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}

// translate maps an fsnotify event onto a file operation, registering new
// directories on the way. ok is false for events that are not reported.
func (w *FSNotifyWatcher) translate(event fsnotify.Event) (string, ports.FileOperation, bool) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.log.WithError(err).WithField("path", event.Name).Warn("failed to watch new directory")
			}
			return "", 0, false
		}
	}

	if !w.isWatchedExtension(event.Name) {
		return "", 0, false
	}

	switch {
	case event.Has(fsnotify.Create):
		return event.Name, ports.FileCreated, true
	case event.Has(fsnotify.Write):
		return event.Name, ports.FileModified, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return event.Name, ports.FileDeleted, true
	default:
		return "", 0, false
	}
}

func (w *FSNotifyWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

// isWatchedExtension checks if the file has a watched extension.
func (w *FSNotifyWatcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
