// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package render

import (
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/specialistvlad/gridsplit/internal/geometry"
	"github.com/specialistvlad/gridsplit/internal/source"
)

// Format is the container a tile is encoded into. All supported formats are
// lossless.
type Format int

const (
	PNG Format = iota
	TIFF
	BMP
)

// ParseFormat maps a manifest or flag value to a Format. The empty string
// selects PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return PNG, nil
	case "tiff", "tif":
		return TIFF, nil
	case "bmp":
		return BMP, nil
	default:
		return PNG, fmt.Errorf("unsupported tile format %q: must be 'png', 'tiff' or 'bmp'", s)
	}
}

func (f Format) String() string {
	switch f {
	case TIFF:
		return "tiff"
	case BMP:
		return "bmp"
	default:
		return "png"
	}
}

// MediaType is the MIME type of encoded tiles.
func (f Format) MediaType() string {
	switch f {
	case TIFF:
		return "image/tiff"
	case BMP:
		return "image/bmp"
	default:
		return "image/png"
	}
}

// Extension is the file extension of encoded tiles, with the leading dot.
func (f Format) Extension() string {
	return "." + f.String()
}

func (f Format) imaging() imaging.Format {
	switch f {
	case TIFF:
		return imaging.TIFF
	case BMP:
		return imaging.BMP
	default:
		return imaging.PNG
	}
}

// Metadata describes where a tile came from.
type Metadata struct {
	geometry.TileRect
	SourceWidth  int
	SourceHeight int
}

// Artifact is one rendered tile. It is immutable once created.
type Artifact struct {
	HandleID  string
	Data      []byte
	Format    Format
	MediaType string
	Metadata  Metadata
}

// DataURL returns the tile as a base64 data: URL.
func (a Artifact) DataURL() string {
	return source.EncodeDataURL(a.MediaType, a.Data)
}

// FileName is the conventional file name for the tile, e.g. "tile-3.png".
func (a Artifact) FileName() string {
	return a.HandleID + a.Format.Extension()
}
