// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package executor runs split-node renders on a fixed pool of workers.
//
// Submitting a node moves it to loading and queues its ticket. A worker
// renders the ticket's source and config, then hands the result back to the
// node, which applies it only if the ticket is still current. Config edits
// never wait for a worker.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/geometry"
	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/render"
	"github.com/specialistvlad/gridsplit/internal/source"
)

const defaultQueueSize = 256

var (
	// ErrStopped is returned by Submit once Stop has been called.
	ErrStopped = errors.New("executor stopped")
	// ErrRenderFailed is returned by Run when any node ends in error.
	ErrRenderFailed = errors.New("render failed")
)

// Renderer produces the tiles for one source and grid.
type Renderer interface {
	Render(ctx context.Context, src source.Image, cfg geometry.Config) ([]render.Artifact, error)
}

// ResultHook is called after a node accepted a render result.
type ResultHook func(ctx context.Context, st *node.State, t node.Ticket, artifacts []render.Artifact) error

type job struct {
	st     *node.State
	ticket node.Ticket
}

// Executor is a render worker pool.
type Executor struct {
	renderer   Renderer
	pick       func(nodeID string) Renderer
	numWorkers int
	hooks      []ResultHook

	queue   chan job
	done    chan struct{}
	pending sync.WaitGroup
	workers sync.WaitGroup
	// senders counts Submit calls that may still send on queue.
	senders sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithResultHook registers h for every applied result.
func WithResultHook(h ResultHook) Option {
	return func(e *Executor) { e.hooks = append(e.hooks, h) }
}

// WithRendererFor selects a renderer per node. Nodes for which pick returns
// nil use the default renderer.
func WithRendererFor(pick func(nodeID string) Renderer) Option {
	return func(e *Executor) { e.pick = pick }
}

// WithQueueSize sets how many renders may wait for a worker.
func WithQueueSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.queue = make(chan job, n)
		}
	}
}

// New creates an executor with numWorkers workers.
func New(r Renderer, numWorkers int, opts ...Option) *Executor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	e := &Executor{
		renderer:   r,
		numWorkers: numWorkers,
		queue:      make(chan job, defaultQueueSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the workers. Cancelling ctx makes workers fail the tickets
// they pick up instead of rendering them.
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	e.workers.Add(e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, i)
	}
}

// Submit begins a render of st and queues it. It fails with node.ErrNotReady
// unless st is ready. A Submit blocked on a full queue fails the render with
// ErrStopped once Stop is called.
func (e *Executor) Submit(ctx context.Context, st *node.State) (node.Ticket, error) {
	e.mu.RLock()
	if e.stopped {
		e.mu.RUnlock()
		return node.Ticket{}, ErrStopped
	}
	e.senders.Add(1)
	e.mu.RUnlock()
	defer e.senders.Done()

	ticket, err := st.Begin()
	if err != nil {
		return node.Ticket{}, err
	}

	e.pending.Add(1)
	select {
	case e.queue <- job{st: st, ticket: ticket}:
	case <-e.done:
		e.pending.Done()
		st.Fail(ticket, ErrStopped)
		return node.Ticket{}, ErrStopped
	case <-ctx.Done():
		e.pending.Done()
		st.Fail(ticket, ctx.Err())
		return node.Ticket{}, ctx.Err()
	}

	ctxlog.FromContext(ctx).Debug("Render queued.", "node", st.ID(), "render_id", ticket.RenderID, "epoch", ticket.Epoch, "grid", ticket.Config.String())
	return ticket, nil
}

func (e *Executor) rendererFor(nodeID string) Renderer {
	if e.pick != nil {
		if r := e.pick(nodeID); r != nil {
			return r
		}
	}
	return e.renderer
}

// Wait blocks until every queued render has been processed.
func (e *Executor) Wait() {
	e.pending.Wait()
}

// Stop drains the queue and stops the workers. Renders still queued on an
// executor that was never started fail with ErrStopped.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.done)
	started := e.started
	e.mu.Unlock()

	// No sender may touch the queue once it is closed.
	e.senders.Wait()
	close(e.queue)

	if started {
		e.workers.Wait()
		return
	}
	for j := range e.queue {
		j.st.Fail(j.ticket, ErrStopped)
		e.pending.Done()
	}
}

// Run renders every ready node in states, waits for all of them and stops
// the pool. It reports ErrRenderFailed naming each node that ended in error.
func (e *Executor) Run(ctx context.Context, states []*node.State) error {
	logger := ctxlog.FromContext(ctx)
	e.Start(ctx)
	defer e.Stop()

	submitted := 0
	for _, st := range states {
		if st.Status() != node.StatusReady {
			logger.Warn("Node has nothing to render, skipping.", "node", st.ID(), "status", st.Status().String())
			continue
		}
		if _, err := e.Submit(ctx, st); err != nil {
			return fmt.Errorf("failed to submit %s: %w", st.ID(), err)
		}
		submitted++
	}

	logger.Info("Waiting for all renders to complete...", "count", submitted)
	e.Wait()
	logger.Info("All renders completed.")

	var failed []string
	var rootCause string
	for _, st := range states {
		snap := st.Snapshot()
		if snap.Status != node.StatusError {
			continue
		}
		logger.Error("Node failed rendering.", "node", snap.ID, "error", snap.Error)
		failed = append(failed, snap.ID)
		if rootCause == "" {
			rootCause = snap.Error
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w for %s: %s", ErrRenderFailed, strings.Join(failed, ", "), rootCause)
	}
	return nil
}
