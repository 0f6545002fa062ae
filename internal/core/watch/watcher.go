// Package watch invalidates cached session views when their transcript
// files change on disk. Invalidation only drops the derived model; the next
// request triggers a full re-parse.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceWindow = 500 * time.Millisecond

// Invalidator receives the transcript paths whose derived views are stale.
type Invalidator interface {
	Invalidate(path string)
}

// Watcher observes a projects root and all project directories beneath it.
type Watcher struct {
	watcher *fsnotify.Watcher
	cache   Invalidator
	root    string
	log     *slog.Logger

	// OnInvalidate, when set, is called after each invalidation. Used by
	// the CLI daemon for progress output and by tests.
	OnInvalidate func(path string)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher over root. The root must exist; project
// subdirectories created later are picked up from their create events.
func New(root string, cache Invalidator, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if _, err := os.Stat(root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch root does not exist: %s", root)
	}

	return &Watcher{
		watcher: fw,
		cache:   cache,
		root:    root,
		log:     log,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.setupWatches(); err != nil {
		return fmt.Errorf("failed to setup watches: %w", err)
	}
	w.log.Info("watching transcripts", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher shutting down")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed unexpectedly")
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) setupWatches() error {
	return filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New project directories need their own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.log.Warn("failed to watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}

	if !shouldProcess(event) {
		return
	}
	w.debounce(event.Name)
}

// debounce coalesces the bursts of write events an appending agent
// produces; the cache is invalidated once per quiet period.
func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(debounceWindow)
		return
	}
	w.pending[path] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		w.cache.Invalidate(path)
		w.log.Debug("invalidated", "path", path)
		if w.OnInvalidate != nil {
			w.OnInvalidate(path)
		}
	})
}

func shouldProcess(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".jsonl") {
		return false
	}
	return event.Op&fsnotify.Write != 0 || event.Op&fsnotify.Create != 0
}
