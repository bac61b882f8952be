// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/specialistvlad/gridsplit/internal/ctxlog"

	// Registered for image.Decode via imaging.
	_ "golang.org/x/image/webp"
)

// DefaultCacheSize is the number of decoded images kept by a Decoder.
const DefaultCacheSize = 32

// ErrUnresolved is returned when decoding an Image without bytes.
var ErrUnresolved = errors.New("source has no data")

// Decoded is a source image after decoding.
type Decoded struct {
	Image  image.Image
	Width  int
	Height int
	Digest string
}

// Decoder decodes source bytes, caching results by content digest so that
// grid edits against the same image skip the decode step.
type Decoder struct {
	cache *lru.Cache[string, *Decoded]
}

// NewDecoder creates a Decoder with room for size images.
func NewDecoder(size int) (*Decoder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Decoded](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decode cache: %w", err)
	}
	return &Decoder{cache: cache}, nil
}

// Decode returns the decoded pixels of img. The returned image must be
// treated as read-only; it is shared with other callers through the cache.
func (d *Decoder) Decode(ctx context.Context, img Image) (*Decoded, error) {
	if !img.Resolved() {
		return nil, ErrUnresolved
	}
	key := img.Digest
	if key == "" {
		key = digest(img.Data)
	}

	if cached, ok := d.cache.Get(key); ok {
		ctxlog.FromContext(ctx).Debug("Decode cache hit.", "digest", key[:min(len(key), 12)])
		return cached, nil
	}

	pix, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	b := pix.Bounds()
	dec := &Decoded{Image: pix, Width: b.Dx(), Height: b.Dy(), Digest: key}
	d.cache.Add(key, dec)
	return dec, nil
}

// Len returns the number of cached images.
func (d *Decoder) Len() int {
	return d.cache.Len()
}

// Purge empties the cache.
func (d *Decoder) Purge() {
	d.cache.Purge()
}
