// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Config, the requested grid shape of a split node.
//
// Why validate here?
//
// Rows and columns arrive from several boundaries: HCL manifests, CLI flags,
// and direct edits on a node. All of them funnel through NewConfig, so an
// out-of-range shape is rejected once and never reaches tile computation or
// rendering.
package geometry

import (
	"errors"
	"fmt"
)

const (
	// MinDimension is the smallest accepted value for rows or columns.
	MinDimension = 1
	// MaxDimension is the largest accepted value for rows or columns.
	MaxDimension = 10
	// MaxTiles is the advisory tile count above which a warning is raised.
	MaxTiles = 64
)

// ErrInvalidConfig is returned when rows or columns fall outside
// [MinDimension, MaxDimension].
var ErrInvalidConfig = errors.New("invalid grid config")

// Config is the requested grid shape.
type Config struct {
	Rows    int
	Columns int
}

// DefaultConfig is the shape a freshly created node starts with.
func DefaultConfig() Config {
	return Config{Rows: 1, Columns: 1}
}

// NewConfig validates rows and columns and returns the resulting Config.
func NewConfig(rows, columns int) (Config, error) {
	cfg := Config{Rows: rows, Columns: columns}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports whether both dimensions are within bounds.
func (c Config) Validate() error {
	if err := validateDimension("rows", c.Rows); err != nil {
		return err
	}
	return validateDimension("columns", c.Columns)
}

// ValidateDimension checks a single row or column value.
func ValidateDimension(name string, v int) error {
	return validateDimension(name, v)
}

func validateDimension(name string, v int) error {
	if v < MinDimension || v > MaxDimension {
		return fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrInvalidConfig, name, MinDimension, MaxDimension, v)
	}
	return nil
}

// TileCount is rows*columns.
func (c Config) TileCount() int {
	return c.Rows * c.Columns
}

// ExceedsMax is informational only; rendering is never blocked by it.
func (c Config) ExceedsMax() bool {
	return c.TileCount() > MaxTiles
}

// CountText is the human readable tile count, e.g. "1 tile" or "9 tiles".
func (c Config) CountText() string {
	n := c.TileCount()
	if n == 1 {
		return "1 tile"
	}
	return fmt.Sprintf("%d tiles", n)
}

// Warning returns the advisory message shown when ExceedsMax is true, or "".
func (c Config) Warning() string {
	if !c.ExceedsMax() {
		return ""
	}
	return fmt.Sprintf("Max %d tiles exceeded", MaxTiles)
}

// String renders the shape as "RxC".
func (c Config) String() string {
	return fmt.Sprintf("%dx%d", c.Rows, c.Columns)
}
