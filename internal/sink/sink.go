// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package sink persists accepted renders.
//
// Every sink writes the same layout: one file per tile, named after its
// handle id, plus a manifest.json describing the grid, its ports and each
// tile's placement in the source image.
package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/executor"
	"github.com/specialistvlad/gridsplit/internal/geometry"
	"github.com/specialistvlad/gridsplit/internal/model"
	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/nodeid"
	"github.com/specialistvlad/gridsplit/internal/render"
	"github.com/specialistvlad/gridsplit/internal/topology"
	"github.com/zclconf/go-cty/cty"
)

// ManifestFile is the name of the per-node manifest.
const ManifestFile = "manifest.json"

// Batch is one accepted render of one node.
type Batch struct {
	NodeID    string
	RenderID  string
	Config    geometry.Config
	Artifacts []render.Artifact
}

// Name is the node's short name, used as its directory or key segment.
func (b Batch) Name() string {
	if addr, err := nodeid.ParseSplit(b.NodeID); err == nil {
		return addr.NodeName()
	}
	return b.NodeID
}

// Manifest encodes the batch description as JSON.
func (b Batch) Manifest() ([]byte, error) {
	outputs := make(map[string]render.Artifact, len(b.Artifacts))
	for _, a := range b.Artifacts {
		outputs[a.HandleID] = a
	}
	val := cty.ObjectVal(map[string]cty.Value{
		"node":       cty.StringVal(b.NodeID),
		"render_id":  cty.StringVal(b.RenderID),
		"rows":       cty.NumberIntVal(int64(b.Config.Rows)),
		"columns":    cty.NumberIntVal(int64(b.Config.Columns)),
		"count_text": cty.StringVal(b.Config.CountText()),
		"ports":      model.PortsValue(topology.ComputePorts(b.Config)),
		"outputs":    model.OutputsValue(outputs, false),
	})
	return model.MarshalJSON(val)
}

// Sink stores a batch.
type Sink interface {
	Write(ctx context.Context, b Batch) error
}

// Multi writes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Write(ctx context.Context, b Batch) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Router sends each batch to the sink registered for its node.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Sink
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Sink)}
}

// Set registers s for nodeID. A nil s removes the route.
func (r *Router) Set(nodeID string, s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s == nil {
		delete(r.routes, nodeID)
		return
	}
	r.routes[nodeID] = s
}

func (r *Router) Write(ctx context.Context, b Batch) error {
	r.mu.RLock()
	s, ok := r.routes[b.NodeID]
	r.mu.RUnlock()
	if !ok {
		ctxlog.FromContext(ctx).Debug("No sink configured for node.", "node", b.NodeID)
		return nil
	}
	return s.Write(ctx, b)
}

// Hook adapts s to an executor result hook. Writes of one node are
// serialized and a result superseded by a newer epoch is not written, so a
// slow earlier render never overwrites the tiles of a later one.
func Hook(s Sink) executor.ResultHook {
	var locks sync.Map // node id -> *sync.Mutex
	return func(ctx context.Context, st *node.State, t node.Ticket, artifacts []render.Artifact) error {
		l, _ := locks.LoadOrStore(st.ID(), &sync.Mutex{})
		mu := l.(*sync.Mutex)
		mu.Lock()
		defer mu.Unlock()

		if !st.IsLatest(t) {
			ctxlog.FromContext(ctx).Debug("Skipped writing superseded render.", "node", st.ID(), "render_id", t.RenderID, "epoch", t.Epoch)
			return nil
		}
		return s.Write(ctx, Batch{
			NodeID:    st.ID(),
			RenderID:  t.RenderID,
			Config:    t.Config,
			Artifacts: artifacts,
		})
	}
}
