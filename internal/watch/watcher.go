// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package watch reports changes to a set of files, debounced.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/gridsplit/internal/ctxlog"
)

// DefaultDebounce is how long a file must stay quiet before it is reported.
const DefaultDebounce = 250 * time.Millisecond

// Watcher monitors files and sends batches of changed paths.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	changes   chan []string
	done      chan struct{}
	stopOnce  sync.Once

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
	// exts maps a directory to the extension of new files reported in it.
	exts map[string]string
}

// New creates a watcher. A non-positive debounce selects DefaultDebounce.
func New(debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fsWatcher: fsw,
		debounce:  debounce,
		changes:   make(chan []string, 1),
		done:      make(chan struct{}),
		files:     make(map[string]bool),
		dirs:      make(map[string]bool),
		exts:      make(map[string]string),
	}, nil
}

// Add starts watching paths. The directory of each file is watched so that
// editors replacing the file are noticed.
func (w *Watcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		if err := w.watchDirLocked(filepath.Dir(abs)); err != nil {
			return err
		}
		w.files[abs] = true
	}
	return nil
}

// AddDir watches dir for any file ending in ext, including files created
// after the call.
func (w *Watcher) AddDir(dir, ext string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dir, err)
	}
	if err := w.watchDirLocked(abs); err != nil {
		return err
	}
	w.exts[abs] = ext
	return nil
}

func (w *Watcher) watchDirLocked(dir string) error {
	if w.dirs[dir] {
		return nil
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}
	w.dirs[dir] = true
	return nil
}

// Files returns the watched files in lexical order.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	slices.Sort(files)
	return files
}

func (w *Watcher) isWatched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	path = filepath.Clean(path)
	if w.files[path] {
		return true
	}
	ext, ok := w.exts[filepath.Dir(path)]
	return ok && filepath.Ext(path) == ext
}

// Start begins processing events. The returned channel receives the absolute
// paths changed within one debounce window. It is closed when ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) <-chan []string {
	go w.loop(ctx)
	return w.changes
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.changes)
	logger := ctxlog.FromContext(ctx)

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := map[string]bool{}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				stopTimer()
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}
			logger.Debug("File changed.", "path", event.Name, "op", event.Op.String())
			pending[filepath.Clean(event.Name)] = true

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			slices.Sort(batch)
			pending = map[string]bool{}

			select {
			case w.changes <- batch:
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				stopTimer()
				return
			}
			logger.Warn("File watcher error.", "error", err)

		case <-w.done:
			stopTimer()
			return

		case <-ctx.Done():
			stopTimer()
			return
		}
	}
}

// isRelevantEvent reports whether event touches a watched file's content.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	return w.isWatched(event.Name)
}
