// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package statusfeed

import (
	"github.com/specialistvlad/gridsplit/internal/geometry"
	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/source"
	"github.com/specialistvlad/gridsplit/internal/topology"
)

// Event names.
const (
	EventSnapshot    = "node:snapshot"
	EventStatus      = "node:status"
	EventPorts       = "node:ports"
	EventOutputs     = "node:outputs"
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
)

// StatusPayload is sent when a node's status or error changes.
type StatusPayload struct {
	Node   string `json:"node"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Epoch  uint64 `json:"epoch"`
}

// PortPayload is one output port.
type PortPayload struct {
	Handle   string  `json:"handle"`
	Label    string  `json:"label"`
	Position float64 `json:"position"`
}

// PortsPayload is sent when a node's grid changes.
type PortsPayload struct {
	Node       string        `json:"node"`
	Input      string        `json:"input"`
	Rows       int           `json:"rows"`
	Columns    int           `json:"columns"`
	TileCount  int           `json:"tile_count"`
	CountText  string        `json:"count_text"`
	ExceedsMax bool          `json:"exceeds_max"`
	Warning    string        `json:"warning,omitempty"`
	Ports      []PortPayload `json:"ports"`
	Vertical   []float64     `json:"vertical"`
	Horizontal []float64     `json:"horizontal"`
}

// TilePayload describes one rendered tile without its pixels.
type TilePayload struct {
	Handle    string `json:"handle"`
	MediaType string `json:"media_type"`
	Index     int    `json:"index"`
	Row       int    `json:"row"`
	Column    int    `json:"column"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Size      int    `json:"size"`
}

// OutputsPayload is sent when a node's outputs are replaced or cleared.
type OutputsPayload struct {
	Node    string        `json:"node"`
	Epoch   uint64        `json:"epoch"`
	Outputs []TilePayload `json:"outputs"`
}

// SnapshotPayload is the full state of one node.
type SnapshotPayload struct {
	StatusPayload
	Source  string         `json:"source,omitempty"`
	Ports   PortsPayload   `json:"ports"`
	Outputs OutputsPayload `json:"outputs"`
}

// Event is one message for the feed.
type Event struct {
	Name    string
	Payload any
}

// NewStatusPayload builds the status message for snap.
func NewStatusPayload(snap node.Snapshot) StatusPayload {
	return StatusPayload{
		Node:   snap.ID,
		Status: snap.Status.String(),
		Error:  snap.Error,
		Epoch:  snap.Epoch,
	}
}

// NewPortsPayload builds the ports message for snap.
func NewPortsPayload(snap node.Snapshot) PortsPayload {
	cfg := snap.Config
	ports := make([]PortPayload, 0, len(snap.Ports))
	for _, p := range snap.Ports {
		ports = append(ports, PortPayload{Handle: p.HandleID, Label: p.Label, Position: p.Position})
	}
	vertical, horizontal := geometry.GuideLines(cfg)
	return PortsPayload{
		Node:       snap.ID,
		Input:      topology.InputHandle,
		Rows:       cfg.Rows,
		Columns:    cfg.Columns,
		TileCount:  cfg.TileCount(),
		CountText:  cfg.CountText(),
		ExceedsMax: cfg.ExceedsMax(),
		Warning:    cfg.Warning(),
		Ports:      ports,
		Vertical:   nonNil(vertical),
		Horizontal: nonNil(horizontal),
	}
}

// NewOutputsPayload builds the outputs message for snap, ordered by tile index.
func NewOutputsPayload(snap node.Snapshot) OutputsPayload {
	arts := snap.OrderedOutputs()
	tiles := make([]TilePayload, 0, len(arts))
	for _, a := range arts {
		m := a.Metadata
		tiles = append(tiles, TilePayload{
			Handle:    a.HandleID,
			MediaType: a.MediaType,
			Index:     m.Index,
			Row:       m.Row,
			Column:    m.Col,
			X:         m.X,
			Y:         m.Y,
			Width:     m.Width,
			Height:    m.Height,
			Size:      len(a.Data),
		})
	}
	return OutputsPayload{Node: snap.ID, Epoch: snap.Epoch, Outputs: tiles}
}

// NewSnapshotPayload builds the full message for snap.
func NewSnapshotPayload(snap node.Snapshot) SnapshotPayload {
	p := SnapshotPayload{
		StatusPayload: NewStatusPayload(snap),
		Ports:         NewPortsPayload(snap),
		Outputs:       NewOutputsPayload(snap),
	}
	if snap.HasSource {
		p.Source = source.Describe(snap.SourceRef)
	}
	return p
}

// Outdated reports whether cur was taken before last: an older epoch, or an
// earlier change within the same epoch.
func Outdated(last, cur node.Snapshot) bool {
	if cur.Epoch != last.Epoch {
		return cur.Epoch < last.Epoch
	}
	return cur.Seq <= last.Seq
}

// Diff returns the events that move a client holding prev to cur. A nil prev
// yields every event.
func Diff(prev *node.Snapshot, cur node.Snapshot) []Event {
	var events []Event
	if prev == nil || prev.Status != cur.Status || prev.Error != cur.Error {
		events = append(events, Event{Name: EventStatus, Payload: NewStatusPayload(cur)})
	}
	if prev == nil || prev.Config != cur.Config {
		events = append(events, Event{Name: EventPorts, Payload: NewPortsPayload(cur)})
	}
	if prev == nil || prev.Epoch != cur.Epoch || len(prev.Outputs) != len(cur.Outputs) {
		events = append(events, Event{Name: EventOutputs, Payload: NewOutputsPayload(cur)})
	}
	return events
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
