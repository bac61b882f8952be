// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package geometry

import (
	"errors"
	"fmt"
	"image"
)

// ErrInvalidDimensions is returned when an image is too small (or empty) for
// the requested grid.
var ErrInvalidDimensions = errors.New("invalid image dimensions")

// TileRect is the pixel region of one tile within the source image.
type TileRect struct {
	Row    int
	Col    int
	Index  int
	X      int
	Y      int
	Width  int
	Height int
}

// Bounds returns the rectangle relative to the source origin.
func (r TileRect) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// ComputeTiles partitions a width x height image into cfg.TileCount()
// rectangles in row-major order. The last column and the last row absorb
// the integer-division remainders, so the union of all rectangles is exactly
// [0,width) x [0,height) with no overlap.
func ComputeTiles(width, height int, cfg Config) ([]TileRect, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image is %dx%d", ErrInvalidDimensions, width, height)
	}
	if cfg.Columns > width || cfg.Rows > height {
		return nil, fmt.Errorf("%w: %dx%d image cannot hold %d rows and %d columns", ErrInvalidDimensions, width, height, cfg.Rows, cfg.Columns)
	}

	tw, th := width/cfg.Columns, height/cfg.Rows
	rw, rh := width-tw*cfg.Columns, height-th*cfg.Rows

	tiles := make([]TileRect, 0, cfg.TileCount())
	for row := 0; row < cfg.Rows; row++ {
		for col := 0; col < cfg.Columns; col++ {
			t := TileRect{
				Row:    row,
				Col:    col,
				Index:  row*cfg.Columns + col,
				X:      col * tw,
				Y:      row * th,
				Width:  tw,
				Height: th,
			}
			if col == cfg.Columns-1 {
				t.Width += rw
			}
			if row == cfg.Rows-1 {
				t.Height += rh
			}
			tiles = append(tiles, t)
		}
	}
	return tiles, nil
}

// GuideLines returns the fractional offsets of the interior grid lines used
// to draw a preview overlay: vertical lines at (i+1)/columns and horizontal
// lines at (i+1)/rows, excluding the outer edge.
func GuideLines(cfg Config) (vertical, horizontal []float64) {
	for i := 0; i < cfg.Columns-1; i++ {
		vertical = append(vertical, float64(i+1)/float64(cfg.Columns))
	}
	for i := 0; i < cfg.Rows-1; i++ {
		horizontal = append(horizontal, float64(i+1)/float64(cfg.Rows))
	}
	return vertical, horizontal
}
