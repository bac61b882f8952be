// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package node holds the state of a single split node: its grid config, its
// source image, the keyed tile outputs and the render status.
//
// Why epochs?
//
// Renders run off the caller's goroutine and may finish after the user has
// already changed the grid or replaced the image. Every config or source
// change bumps the epoch; a render is issued against one epoch and its result
// is applied only if the epoch still matches when it arrives. Late results
// are dropped without touching the node, so outputs never disagree with the
// ports derived from the current config.
package node

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/gridsplit/internal/geometry"
	"github.com/specialistvlad/gridsplit/internal/render"
	"github.com/specialistvlad/gridsplit/internal/source"
	"github.com/specialistvlad/gridsplit/internal/topology"
)

var (
	// ErrNotReady is returned by Begin when the node is not in StatusReady.
	ErrNotReady = errors.New("node is not ready to render")
	// ErrReleased is returned once the node has been released.
	ErrReleased = errors.New("node has been released")
)

// Ticket identifies one issued render. Results must be handed back with the
// ticket they were computed for.
type Ticket struct {
	RenderID string
	Epoch    uint64
	Config   geometry.Config
	Source   source.Image
}

// Listener is notified with a fresh snapshot after every applied change.
type Listener func(Snapshot)

// State is a split node. It is safe for concurrent use.
type State struct {
	id string

	mu        sync.Mutex
	config    geometry.Config
	source    source.Image
	hasSource bool
	outputs   map[string]render.Artifact
	status    Status
	errMsg    string
	epoch     uint64
	seq       uint64
	released  bool
	listeners []Listener
}

// New creates an idle node with no source and empty outputs.
func New(id string, cfg geometry.Config) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &State{
		id:      id,
		config:  cfg,
		outputs: map[string]render.Artifact{},
		status:  StatusIdle,
	}, nil
}

// ID returns the node identifier.
func (s *State) ID() string {
	return s.id
}

// OnChange registers l to be called after every applied change.
func (s *State) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// SetRows changes the row count. Outputs are reset even if n equals the
// current value. Out-of-range values are rejected without touching state.
func (s *State) SetRows(n int) error {
	if err := geometry.ValidateDimension("rows", n); err != nil {
		return err
	}
	return s.update(func() {
		s.config.Rows = n
		s.invalidate()
	})
}

// SetColumns changes the column count with the same rules as SetRows.
func (s *State) SetColumns(n int) error {
	if err := geometry.ValidateDimension("columns", n); err != nil {
		return err
	}
	return s.update(func() {
		s.config.Columns = n
		s.invalidate()
	})
}

// SetConfig replaces the whole grid shape.
func (s *State) SetConfig(cfg geometry.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.update(func() {
		s.config = cfg
		s.invalidate()
	})
}

// SetSource sets or replaces the source image. Outputs are reset.
func (s *State) SetSource(src source.Image) error {
	if src.IsZero() {
		return s.ClearSource()
	}
	return s.update(func() {
		s.source = src
		s.hasSource = true
		s.invalidate()
	})
}

// ClearSource removes the source image and returns the node to idle.
func (s *State) ClearSource() error {
	return s.update(func() {
		s.source = source.Image{}
		s.hasSource = false
		s.invalidate()
	})
}

// invalidate drops outputs and any error, bumps the epoch and settles on
// ready or idle. Callers hold s.mu.
func (s *State) invalidate() {
	s.epoch++
	s.outputs = map[string]render.Artifact{}
	s.errMsg = ""
	if s.hasSource {
		s.status = StatusReady
	} else {
		s.status = StatusIdle
	}
}

// Begin moves a ready node to loading and returns the ticket the render
// result must be reported with.
func (s *State) Begin() (Ticket, error) {
	var t Ticket
	err := s.update(func() {
		t = Ticket{
			RenderID: uuid.NewString(),
			Epoch:    s.epoch,
			Config:   s.config,
			Source:   s.source,
		}
		s.status = StatusLoading
	}, StatusReady)
	if err != nil {
		return Ticket{}, err
	}
	return t, nil
}

// Complete stores the artifacts of a finished render. It reports false and
// leaves the node untouched when the ticket is stale.
func (s *State) Complete(t Ticket, artifacts []render.Artifact) bool {
	applied := s.apply(t, func() {
		outputs := make(map[string]render.Artifact, len(artifacts))
		for _, a := range artifacts {
			outputs[a.HandleID] = a
		}
		s.outputs = outputs
		s.errMsg = ""
		s.status = StatusComplete
	})
	return applied
}

// Fail records a render failure. Outputs are cleared so they never describe
// an image or grid the node no longer has. Stale tickets are ignored.
func (s *State) Fail(t Ticket, renderErr error) bool {
	msg := "render failed"
	if renderErr != nil {
		msg = renderErr.Error()
	}
	return s.apply(t, func() {
		s.outputs = map[string]render.Artifact{}
		s.errMsg = msg
		s.status = StatusError
	})
}

// IsCurrent reports whether results for t would still be applied.
func (s *State) IsCurrent(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(t)
}

// IsLatest reports whether t belongs to the node's current epoch, whether or
// not its result has been applied yet.
func (s *State) IsLatest(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.released && t.Epoch == s.epoch
}

func (s *State) current(t Ticket) bool {
	return !s.released && s.status == StatusLoading && t.Epoch == s.epoch
}

// Release drops owned artifacts and listeners. Later results are discarded.
func (s *State) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.epoch++
	s.outputs = map[string]render.Artifact{}
	s.listeners = nil
}

func (s *State) apply(t Ticket, fn func()) bool {
	s.mu.Lock()
	if !s.current(t) {
		s.mu.Unlock()
		return false
	}
	fn()
	s.seq++
	snap, listeners := s.snapshotLocked(), s.listeners
	s.mu.Unlock()

	notify(listeners, snap)
	return true
}

// update applies fn under the lock, optionally requiring one of the given
// statuses, then notifies listeners.
func (s *State) update(fn func(), require ...Status) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrReleased
	}
	if len(require) > 0 && !hasStatus(s.status, require) {
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: status is %s", ErrNotReady, status)
	}
	fn()
	s.seq++
	snap, listeners := s.snapshotLocked(), s.listeners
	s.mu.Unlock()

	notify(listeners, snap)
	return nil
}

func hasStatus(s Status, set []Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func notify(listeners []Listener, snap Snapshot) {
	for _, l := range listeners {
		l(snap)
	}
}

// Config returns the current grid shape.
func (s *State) Config() geometry.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Ports derives the output ports from the current config.
func (s *State) Ports() []topology.Port {
	return topology.ComputePorts(s.Config())
}

// Output returns the artifact for handle, if rendered.
func (s *State) Output(handle string) (render.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.outputs[handle]
	return a, ok
}

// Snapshot returns a consistent copy of the node's observable state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	outputs := make(map[string]render.Artifact, len(s.outputs))
	for k, v := range s.outputs {
		outputs[k] = v
	}
	return Snapshot{
		ID:        s.id,
		Config:    s.config,
		Status:    s.status,
		Error:     s.errMsg,
		Outputs:   outputs,
		Ports:     topology.ComputePorts(s.config),
		HasSource: s.hasSource,
		SourceRef: s.source.Ref,
		Epoch:     s.epoch,
		Seq:       s.seq,
	}
}

// Snapshot is a point-in-time copy of a node.
type Snapshot struct {
	ID        string
	Config    geometry.Config
	Status    Status
	Error     string
	Outputs   map[string]render.Artifact
	Ports     []topology.Port
	HasSource bool
	SourceRef string
	Epoch     uint64
	// Seq counts applied changes. Listeners run outside the lock, so a
	// snapshot with a lower Seq than one already seen is outdated.
	Seq       uint64
}

// OrderedOutputs returns the outputs sorted by tile index.
func (s Snapshot) OrderedOutputs() []render.Artifact {
	out := make([]render.Artifact, 0, len(s.Outputs))
	for _, a := range s.Outputs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.Index < out[j].Metadata.Index
	})
	return out
}
