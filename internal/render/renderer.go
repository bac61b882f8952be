// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package render turns a source image and a grid shape into independently
// encoded tile artifacts.
//
// Each tile is cropped into its own pixel buffer and encoded on its own
// goroutine. No drawing surface is shared between tiles or between renders,
// so one Renderer can serve every node concurrently. A render either yields
// one artifact per tile or fails as a whole.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/geometry"
	"github.com/specialistvlad/gridsplit/internal/source"
	"github.com/specialistvlad/gridsplit/internal/topology"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/specialistvlad/gridsplit/internal/render"

// Encoder writes one tile. It replaces the built-in format encoders when set.
type Encoder func(w io.Writer, img image.Image) error

// Renderer decodes sources and encodes tiles.
type Renderer struct {
	loader      *source.Loader
	decoder     *source.Decoder
	format      Format
	compression png.CompressionLevel
	encode      Encoder
	concurrency int
	tracer      trace.Tracer
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLoader resolves unresolved source references before decoding.
func WithLoader(l *source.Loader) Option {
	return func(r *Renderer) { r.loader = l }
}

// WithFormat sets the tile format.
func WithFormat(f Format) Option {
	return func(r *Renderer) { r.format = f }
}

// WithCompression sets the PNG compression level.
func WithCompression(level png.CompressionLevel) Option {
	return func(r *Renderer) { r.compression = level }
}

// WithEncoder overrides tile encoding.
func WithEncoder(enc Encoder) Option {
	return func(r *Renderer) { r.encode = enc }
}

// WithConcurrency caps the number of tiles encoded at once.
func WithConcurrency(n int) Option {
	return func(r *Renderer) { r.concurrency = n }
}

// WithTracer sets the tracer used for render spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Renderer) { r.tracer = t }
}

// New creates a Renderer backed by decoder.
func New(decoder *source.Decoder, opts ...Option) *Renderer {
	r := &Renderer{
		decoder:     decoder,
		format:      PNG,
		compression: png.DefaultCompression,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loader == nil {
		r.loader = source.NewLoader()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	if r.concurrency <= 0 {
		r.concurrency = 1
	}
	return r
}

// Format returns the configured tile format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render decodes src, partitions it according to cfg and encodes every tile.
// Failures are *DecodeError, geometry.ErrInvalidDimensions, *EncodeError, or
// the context error when ctx ends first.
func (r *Renderer) Render(ctx context.Context, src source.Image, cfg geometry.Config) ([]Artifact, error) {
	ctx, span := r.tracer.Start(ctx, "render.Render", trace.WithAttributes(
		attribute.String("source", source.Describe(src.Ref)),
		attribute.Int("rows", cfg.Rows),
		attribute.Int("columns", cfg.Columns),
		attribute.Int("tiles", cfg.TileCount()),
	))
	defer span.End()

	artifacts, err := r.render(ctx, src, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return artifacts, nil
}

func (r *Renderer) render(ctx context.Context, src source.Image, cfg geometry.Config) ([]Artifact, error) {
	logger := ctxlog.FromContext(ctx)

	resolved, err := r.loader.Resolve(ctx, src)
	if err != nil {
		return nil, &DecodeError{Ref: source.Describe(src.Ref), Err: err}
	}
	decoded, err := r.decoder.Decode(ctx, resolved)
	if err != nil {
		return nil, &DecodeError{Ref: source.Describe(src.Ref), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rects, err := geometry.ComputeTiles(decoded.Width, decoded.Height, cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Tiles computed.", "width", decoded.Width, "height", decoded.Height, "grid", cfg.String())

	return r.RenderTiles(ctx, decoded, rects)
}

// RenderTiles crops and encodes each rect of decoded. The result is ordered
// like rects.
func (r *Renderer) RenderTiles(ctx context.Context, decoded *source.Decoded, rects []geometry.TileRect) ([]Artifact, error) {
	if decoded == nil || decoded.Image == nil {
		return nil, &DecodeError{Err: errors.New("no decoded image")}
	}

	artifacts := make([]Artifact, len(rects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, rect := range rects {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a, err := r.renderTile(decoded, rect)
			if err != nil {
				return err
			}
			artifacts[i] = a
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func (r *Renderer) renderTile(decoded *source.Decoded, rect geometry.TileRect) (Artifact, error) {
	handle := topology.HandleID(rect.Index)
	origin := decoded.Image.Bounds().Min

	tile := imaging.Crop(decoded.Image, rect.Bounds().Add(origin))
	if got := tile.Bounds(); got.Dx() != rect.Width || got.Dy() != rect.Height {
		return Artifact{}, &EncodeError{
			HandleID: handle,
			Err:      fmt.Errorf("crop %v yielded %dx%d pixels, want %dx%d", rect.Bounds(), got.Dx(), got.Dy(), rect.Width, rect.Height),
		}
	}

	var buf bytes.Buffer
	if err := r.encodeTile(&buf, tile); err != nil {
		return Artifact{}, &EncodeError{HandleID: handle, Err: err}
	}

	return Artifact{
		HandleID:  handle,
		Data:      buf.Bytes(),
		Format:    r.format,
		MediaType: r.format.MediaType(),
		Metadata: Metadata{
			TileRect:     rect,
			SourceWidth:  decoded.Width,
			SourceHeight: decoded.Height,
		},
	}, nil
}

func (r *Renderer) encodeTile(w io.Writer, tile image.Image) error {
	if r.encode != nil {
		return r.encode(w, tile)
	}
	return imaging.Encode(w, tile, r.format.imaging(), imaging.PNGCompressionLevel(r.compression))
}
