// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package topology derives the output port layout of a split node from its
// grid shape.
//
// Ports are never stored. Every call recomputes them from the config, so the
// handle set a downstream graph sees is always consistent with the current
// rows and columns, and handle ids stay stable for a given index.
package topology

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/specialistvlad/gridsplit/internal/geometry"
)

const (
	// InputHandle is the id of the single target connection point.
	InputHandle = "image"

	handlePrefix = "tile-"

	// labelGridLimit is the largest tile count that still uses row/column labels.
	labelGridLimit = 16
)

// Port describes one output connection point of a split node.
type Port struct {
	HandleID string
	Label    string
	// Position is the fractional placement along the node edge, in [0,1].
	Position float64
}

// HandleID returns the stable handle id for a tile index.
func HandleID(index int) string {
	return handlePrefix + strconv.Itoa(index)
}

// ParseHandleID returns the tile index encoded in a handle id.
func ParseHandleID(handle string) (int, error) {
	rest, ok := strings.CutPrefix(handle, handlePrefix)
	if !ok || rest == "" {
		return 0, fmt.Errorf("invalid tile handle %q", handle)
	}
	index, err := strconv.Atoi(rest)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("invalid tile handle %q", handle)
	}
	return index, nil
}

// Label returns the display label of the tile at index within cfg, or ""
// when cfg has no tile at index.
func Label(cfg geometry.Config, index int) string {
	if !hasTile(cfg, index) {
		return ""
	}
	if cfg.TileCount() <= labelGridLimit {
		row, col := index/cfg.Columns, index%cfg.Columns
		return fmt.Sprintf("r%dc%d", row+1, col+1)
	}
	return fmt.Sprintf("t%d", index)
}

// Position returns the fractional placement of the port at index, or 0 when
// cfg has no tile at index.
func Position(cfg geometry.Config, index int) float64 {
	if !hasTile(cfg, index) {
		return 0
	}
	n := cfg.TileCount()
	if n == 1 {
		return 0.5
	}
	return 0.15 + float64(index)/float64(n-1)*0.70
}

func hasTile(cfg geometry.Config, index int) bool {
	return cfg.Rows > 0 && cfg.Columns > 0 && index >= 0 && index < cfg.TileCount()
}

// ComputePorts returns one port per tile, ordered by tile index.
func ComputePorts(cfg geometry.Config) []Port {
	if cfg.Rows <= 0 || cfg.Columns <= 0 {
		return nil
	}
	n := cfg.TileCount()
	ports := make([]Port, n)
	for i := range ports {
		ports[i] = Port{
			HandleID: HandleID(i),
			Label:    Label(cfg, i),
			Position: Position(cfg, i),
		}
	}
	return ports
}
