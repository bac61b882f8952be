// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/executor"
	"github.com/specialistvlad/gridsplit/internal/inmemorystore"
	"github.com/specialistvlad/gridsplit/internal/model"
	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/nodeid"
	"github.com/specialistvlad/gridsplit/internal/nodestore"
	"github.com/specialistvlad/gridsplit/internal/render"
	"github.com/specialistvlad/gridsplit/internal/s3store"
	"github.com/specialistvlad/gridsplit/internal/sink"
	"github.com/specialistvlad/gridsplit/internal/source"
	"github.com/specialistvlad/gridsplit/internal/statusfeed"
	"github.com/specialistvlad/gridsplit/internal/tracing"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	ctx    context.Context
	config *Config

	tracer    *tracing.Provider
	objects   *s3store.Store
	decoder   *source.Decoder
	renderers map[render.Format]*render.Renderer
	exec      *executor.Executor
	store     nodestore.Store
	router    *sink.Router
	feed      *statusfeed.Feed

	// formats is read by workers without taking mu.
	formats sync.Map // node id -> render.Format

	mu       sync.Mutex
	manifest *model.Manifest
	splits   map[string]*model.Split
	refs     map[string]string

	autoSubmit atomic.Bool

	httpServer *http.Server
	listenAddr string
}

// NewApp builds every component and loads the manifest at cfg.ManifestPath.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	tracer, err := tracing.NewProvider(tracing.Config{Exporter: cfg.Trace, Writer: outW})
	if err != nil {
		return nil, fmt.Errorf("failed to configure tracing: %w", err)
	}

	a := &App{
		outW:      outW,
		logger:    logger,
		ctx:       ctx,
		config:    cfg,
		tracer:    tracer,
		renderers: make(map[render.Format]*render.Renderer),
		store:     inmemorystore.New(),
		router:    sink.NewRouter(),
		splits:    make(map[string]*model.Split),
		refs:      make(map[string]string),
	}

	var loaderOpts []source.LoaderOption
	if cfg.S3.Enabled() {
		objects, err := s3store.New(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to configure object store: %w", err)
		}
		a.objects = objects
		loaderOpts = append(loaderOpts, source.WithFetcher(objects))
		logger.Debug("Object store configured.", "endpoint", cfg.S3.Endpoint)
	}

	a.decoder, err = source.NewDecoder(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	loader := source.NewLoader(loaderOpts...)
	for _, f := range []render.Format{render.PNG, render.TIFF, render.BMP} {
		a.renderers[f] = render.New(a.decoder,
			render.WithLoader(loader),
			render.WithFormat(f),
			render.WithTracer(tracer.Tracer()),
		)
	}

	a.exec = executor.New(a.renderers[render.PNG], cfg.WorkerCount,
		executor.WithResultHook(sink.Hook(a.router)),
		executor.WithRendererFor(a.rendererFor),
	)
	a.feed = statusfeed.New(ctx, a.snapshots)

	if err := a.LoadManifest(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) rendererFor(nodeID string) executor.Renderer {
	f, ok := a.formats.Load(nodeID)
	if !ok {
		return nil
	}
	r, ok := a.renderers[f.(render.Format)]
	if !ok {
		return nil
	}
	return r
}

// LoadManifest (re)reads the manifest and reconciles the node store with it.
func (a *App) LoadManifest() error {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Loading manifest...", "path", a.config.ManifestPath)

	manifest, err := model.LoadManifestsRecursively(a.ctx, a.config.ManifestPath)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	if err := a.apply(manifest); err != nil {
		return err
	}
	logger.Info("Manifest loaded successfully.", "splits_found", len(manifest.Splits))
	return nil
}

// apply creates, updates and removes nodes so they match manifest.
func (a *App) apply(manifest *model.Manifest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	logger := ctxlog.FromContext(a.ctx)

	seen := make(map[string]bool, len(manifest.Splits))
	for _, split := range manifest.Splits {
		id := split.Address().String()
		seen[id] = true
		ref := resolveSourceRef(split)

		prev, exists := a.splits[id]
		prevRef := a.refs[id]
		a.splits[id] = split
		a.refs[id] = ref
		a.formats.Store(id, split.Format)
		a.router.Set(id, a.sinkFor(split))

		if !exists {
			if err := a.addNode(split, ref); err != nil {
				return err
			}
			continue
		}

		st, err := a.store.Get(a.ctx, *split.Address())
		if err != nil {
			return fmt.Errorf("node %s vanished from the store: %w", id, err)
		}
		switch {
		case prevRef != ref:
			logger.Info("Split source changed.", "node", id, "source", source.Describe(ref))
			if prev.Config != split.Config {
				if err := st.SetConfig(split.Config); err != nil {
					return err
				}
			}
			if err := st.SetSource(source.FromRef(ref)); err != nil {
				return err
			}
		case prev.Config != split.Config || prev.Format != split.Format || prev.Output != split.Output:
			logger.Info("Split definition changed.", "node", id, "grid", split.Config.String(), "format", split.Format.String())
			if err := st.SetConfig(split.Config); err != nil {
				return err
			}
		}
	}

	for id := range a.splits {
		if seen[id] {
			continue
		}
		logger.Info("Split removed from manifest.", "node", id)
		addr, err := nodeid.ParseSplit(id)
		if err != nil {
			return err
		}
		if err := a.store.Delete(a.ctx, *addr); err != nil {
			return fmt.Errorf("failed to remove %s: %w", id, err)
		}
		a.router.Set(id, nil)
		a.formats.Delete(id)
		a.feed.Forget(id)
		delete(a.splits, id)
		delete(a.refs, id)
	}

	a.manifest = manifest
	return nil
}

func (a *App) addNode(split *model.Split, ref string) error {
	id := split.Address().String()
	st, err := node.New(id, split.Config)
	if err != nil {
		return fmt.Errorf("failed to create node %s: %w", id, err)
	}
	st.OnChange(a.onNodeChange(st))
	if err := a.store.Put(a.ctx, *split.Address(), st); err != nil {
		return fmt.Errorf("failed to register node %s: %w", id, err)
	}
	a.feed.Publish(st.Snapshot())
	if ref != "" {
		if err := st.SetSource(source.FromRef(ref)); err != nil {
			return err
		}
	}
	ctxlog.FromContext(a.ctx).Debug("Node created.", "node", id, "grid", split.Config.String(), "source", source.Describe(ref))
	return nil
}

// onNodeChange publishes every change and, in watch mode, re-renders nodes
// that became ready.
func (a *App) onNodeChange(st *node.State) node.Listener {
	return func(snap node.Snapshot) {
		a.feed.Publish(snap)
		if !a.autoSubmit.Load() || snap.Status != node.StatusReady {
			return
		}
		if _, err := a.exec.Submit(a.ctx, st); err != nil &&
			!errors.Is(err, node.ErrNotReady) && !errors.Is(err, executor.ErrStopped) {
			ctxlog.FromContext(a.ctx).Error("Failed to queue render.", "node", snap.ID, "error", err)
		}
	}
}

// sinkFor builds the destinations declared by split. Splits without an output
// block fall back to the configured output directory.
func (a *App) sinkFor(split *model.Split) sink.Sink {
	var sinks sink.Multi

	dir := split.Output.Dir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(split.FSInformation.Dir(), dir)
	}
	if split.Output.IsZero() {
		dir = a.config.OutDir
	}
	if dir != "" {
		sinks = append(sinks, sink.NewDir(dir))
	}

	if split.Output.Bucket != "" {
		if a.objects == nil {
			ctxlog.FromContext(a.ctx).Warn("Split declares a bucket but no object store is configured, skipping upload.", "node", split.Address().String(), "bucket", split.Output.Bucket)
		} else {
			sinks = append(sinks, sink.NewS3(a.objects, split.Output.Bucket, split.Output.Prefix))
		}
	}

	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}

// resolveSourceRef makes file sources absolute relative to the manifest
// declaring them.
func resolveSourceRef(split *model.Split) string {
	path := source.NewLoader(source.WithBaseDir(split.FSInformation.Dir())).Path(split.Source)
	if path == "" {
		return split.Source
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// States returns every node ordered by address.
func (a *App) States() ([]*node.State, error) {
	return a.store.All(a.ctx)
}

func (a *App) snapshots() []node.Snapshot {
	states, err := a.States()
	if err != nil {
		ctxlog.FromContext(a.ctx).Error("Failed to list nodes.", "error", err)
		return nil
	}
	snaps := make([]node.Snapshot, 0, len(states))
	for _, st := range states {
		snaps = append(snaps, st.Snapshot())
	}
	return snaps
}

// Node returns the node named name.
func (a *App) Node(name string) (*node.State, error) {
	return a.store.Get(a.ctx, *nodeid.Node(name))
}

// Manifest returns the manifest most recently applied.
func (a *App) Manifest() *model.Manifest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.manifest
}

// Close stops the executor, the status feed and flushes traces.
func (a *App) Close() error {
	a.exec.Stop()
	a.feed.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to flush traces: %w", err)
	}
	return nil
}
