// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/fsutil"
	"github.com/specialistvlad/gridsplit/internal/model"
	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/source"
	"github.com/specialistvlad/gridsplit/internal/watch"
)

// Run renders every split once and writes the tiles to their sinks.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if err := a.startServer(); err != nil {
		return err
	}
	defer a.closeServer()

	states, err := a.States()
	if err != nil {
		return err
	}
	if len(states) == 0 {
		a.logger.Warn("No splits found in manifest, nothing to render.")
		return nil
	}

	a.logger.Info("🚀 Starting render...", "splits", len(states), "workers", a.config.WorkerCount)
	if err := a.exec.Run(ctx, states); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Render finished.")

	a.logger.Debug("App.Run method finished.")
	return nil
}

// Watch renders every split, then re-renders whenever a manifest or a file
// source changes, until ctx is done.
func (a *App) Watch(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	if err := a.startServer(); err != nil {
		return err
	}
	defer a.closeServer()

	w, err := watch.New(a.config.Debounce)
	if err != nil {
		return err
	}
	defer w.Stop()
	a.watchFiles(w)

	a.exec.Start(ctx)
	defer a.exec.Stop()
	a.autoSubmit.Store(true)
	defer a.autoSubmit.Store(false)

	a.submitReady(ctx)

	changes := w.Start(ctx)
	a.logger.Info("👀 Watching for changes...", "files", len(w.Files()))
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Stopping watch.")
			return nil
		case batch, ok := <-changes:
			if !ok {
				return nil
			}
			if err := a.handleChanges(ctx, batch); err != nil {
				a.logger.Error("Failed to apply changes.", "error", err)
			}
			a.watchFiles(w)
		}
	}
}

// submitReady queues every node that has a source and no current render.
func (a *App) submitReady(ctx context.Context) {
	states, err := a.States()
	if err != nil {
		a.logger.Error("Failed to list nodes.", "error", err)
		return
	}
	for _, st := range states {
		if st.Status() != node.StatusReady {
			continue
		}
		if _, err := a.exec.Submit(ctx, st); err != nil && !errors.Is(err, node.ErrNotReady) {
			a.logger.Error("Failed to queue render.", "node", st.ID(), "error", err)
		}
	}
}

// watchFiles adds the manifest files, every file source and, for a manifest
// directory, each of its subdirectories to w.
func (a *App) watchFiles(w *watch.Watcher) {
	for _, path := range a.watchedPaths() {
		if err := w.Add(path); err != nil {
			a.logger.Warn("Cannot watch file.", "path", path, "error", err)
		}
	}

	if info, err := os.Stat(a.config.ManifestPath); err != nil || !info.IsDir() {
		return
	}
	dirs, err := fsutil.FindDirs(a.config.ManifestPath)
	if err != nil {
		a.logger.Warn("Cannot list manifest directories.", "path", a.config.ManifestPath, "error", err)
		return
	}
	for _, dir := range dirs {
		if err := w.AddDir(dir, model.ManifestExtension); err != nil {
			a.logger.Warn("Cannot watch directory.", "path", dir, "error", err)
		}
	}
}

func (a *App) watchedPaths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var paths []string
	if a.manifest != nil {
		for _, f := range a.manifest.Files {
			if abs, err := filepath.Abs(f); err == nil {
				paths = append(paths, abs)
			}
		}
	}
	for _, ref := range a.refs {
		if isFileRef(ref) {
			paths = append(paths, ref)
		}
	}
	return paths
}

func isFileRef(ref string) bool {
	return source.NewLoader().Path(ref) != ""
}

// handleChanges reloads the manifest when a manifest file changed or
// appeared, and re-reads changed file sources.
func (a *App) handleChanges(ctx context.Context, changed []string) error {
	logger := ctxlog.FromContext(ctx)
	manifestFiles, sourceUsers := a.changeTargets()

	reload := false
	for _, path := range changed {
		if manifestFiles[path] || filepath.Ext(path) == model.ManifestExtension {
			reload = true
			continue
		}
		for _, st := range sourceUsers[path] {
			logger.Info("Source changed, re-rendering.", "node", st.ID(), "path", path)
			if err := st.SetSource(source.FromRef(path)); err != nil && !errors.Is(err, node.ErrReleased) {
				return err
			}
		}
	}

	if reload {
		logger.Info("Manifest changed, reloading.")
		return a.LoadManifest()
	}
	return nil
}

// changeTargets indexes manifest files and the nodes reading each file source.
func (a *App) changeTargets() (map[string]bool, map[string][]*node.State) {
	a.mu.Lock()
	defer a.mu.Unlock()

	manifestFiles := map[string]bool{}
	if a.manifest != nil {
		for _, f := range a.manifest.Files {
			if abs, err := filepath.Abs(f); err == nil {
				manifestFiles[abs] = true
			}
		}
	}

	users := map[string][]*node.State{}
	for id, ref := range a.refs {
		if !isFileRef(ref) {
			continue
		}
		st, err := a.store.Get(a.ctx, *a.splits[id].Address())
		if err != nil {
			continue
		}
		users[ref] = append(users[ref], st)
	}
	return manifestFiles, users
}
