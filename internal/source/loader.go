// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
)

const s3Scheme = "s3://"

var (
	// ErrEmptyRef is returned when asked to load an empty reference.
	ErrEmptyRef = errors.New("empty source reference")
	// ErrNoFetcher is returned for s3:// references when no object store is configured.
	ErrNoFetcher = errors.New("no object store configured for s3 sources")
)

// Fetcher retrieves objects from a bucket.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// Loader resolves source references into bytes.
type Loader struct {
	fetcher Fetcher
	baseDir string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFetcher enables s3:// references.
func WithFetcher(f Fetcher) LoaderOption {
	return func(l *Loader) { l.fetcher = f }
}

// WithBaseDir resolves relative file paths against dir.
func WithBaseDir(dir string) LoaderOption {
	return func(l *Loader) { l.baseDir = dir }
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Resolve returns img with Data populated. Already resolved images are
// returned unchanged.
func (l *Loader) Resolve(ctx context.Context, img Image) (Image, error) {
	if img.Resolved() {
		if img.Digest == "" {
			img.Digest = digest(img.Data)
		}
		return img, nil
	}
	return l.Load(ctx, img.Ref)
}

// Load reads the bytes behind ref.
func (l *Loader) Load(ctx context.Context, ref string) (Image, error) {
	logger := ctxlog.FromContext(ctx)
	if ref == "" {
		return Image{}, ErrEmptyRef
	}

	var (
		data []byte
		err  error
	)
	switch {
	case IsDataURL(ref):
		_, data, err = ParseDataURL(ref)
	case strings.HasPrefix(ref, s3Scheme):
		data, err = l.loadS3(ctx, ref)
	default:
		data, err = l.loadFile(ref)
	}
	if err != nil {
		return Image{}, err
	}

	logger.Debug("Source loaded.", "ref", Describe(ref), "bytes", len(data))
	return FromBytes(ref, data), nil
}

// Path returns the filesystem path behind ref, or "" for non-file refs.
func (l *Loader) Path(ref string) string {
	if ref == "" || IsDataURL(ref) || strings.HasPrefix(ref, s3Scheme) {
		return ""
	}
	if filepath.IsAbs(ref) || l.baseDir == "" {
		return ref
	}
	return filepath.Join(l.baseDir, ref)
}

func (l *Loader) loadFile(ref string) ([]byte, error) {
	path := l.Path(ref)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file '%s': %w", path, err)
	}
	return data, nil
}

func (l *Loader) loadS3(ctx context.Context, ref string) ([]byte, error) {
	if l.fetcher == nil {
		return nil, ErrNoFetcher
	}
	bucket, key, err := ParseS3Ref(ref)
	if err != nil {
		return nil, err
	}
	data, err := l.fetcher.Fetch(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch '%s': %w", ref, err)
	}
	return data, nil
}

// ParseS3Ref splits s3://bucket/key.
func ParseS3Ref(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("not an s3 reference: %q", ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 reference must be s3://bucket/key, got %q", ref)
	}
	return bucket, key, nil
}

// Describe shortens data: URLs for logging.
func Describe(ref string) string {
	if IsDataURL(ref) && len(ref) > 48 {
		return ref[:48] + "..."
	}
	return ref
}
