package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// Loader loads the document from one file and reloads it when it changes.
type Loader struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.Mutex
	doc      *Document
	onChange []func(*Document)
}

func NewLoader(path string, logger *slog.Logger) *Loader {
	return &Loader{path: path, logger: logger, debounce: defaultDebounce}
}

func (l *Loader) Path() string { return l.path }

// Load reads and validates the file and makes it the current document.
func (l *Loader) Load() (*Document, error) {
	doc, err := LoadFile(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.doc = doc
	l.mu.Unlock()
	return doc, nil
}

// Document returns the last successfully loaded document.
func (l *Loader) Document() *Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc
}

// OnChange registers cb to run after every successful reload.
func (l *Loader) OnChange(cb func(*Document)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, cb)
	l.mu.Unlock()
}

// Watch reloads the file on change until ctx is done. The directory is
// watched rather than the file so editors that replace the file on save are
// followed. Invalid documents are logged and ignored.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(l.path), err)
	}
	l.logger.Info("watching config for changes", "path", l.path)

	var (
		timer  *time.Timer
		fire   <-chan time.Time
		target = filepath.Clean(l.path)
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(l.debounce)
			} else {
				timer.Reset(l.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			l.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (l *Loader) reload() {
	doc, err := l.Load()
	if err != nil {
		l.logger.Error("config reload failed, keeping previous config", "error", err)
		return
	}
	l.logger.Info("config reloaded", "path", l.path, "devices", len(doc.Devices))

	l.mu.Lock()
	cbs := slices.Clone(l.onChange)
	l.mu.Unlock()
	for _, cb := range cbs {
		cb(doc)
	}
}
