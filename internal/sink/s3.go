// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/s3store"
)

// Putter uploads one object. *s3store.Store implements it.
type Putter interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Presigner is implemented by stores that can hand out temporary GET URLs.
type Presigner interface {
	PresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// ManifestURLTTL is how long the logged manifest link stays valid.
const ManifestURLTTL = 24 * time.Hour

// S3 uploads batches to bucket under <prefix>/<name>/.
type S3 struct {
	store  Putter
	bucket string
	prefix string
}

// NewS3 creates an object store sink.
func NewS3(store Putter, bucket, prefix string) *S3 {
	return &S3{store: store, bucket: bucket, prefix: prefix}
}

// Key returns the object key for file within b.
func (s *S3) Key(b Batch, file string) string {
	return s3store.ObjectKey(s.prefix, b.Name(), file)
}

func (s *S3) Write(ctx context.Context, b Batch) error {
	for _, a := range b.Artifacts {
		if err := s.store.Put(ctx, s.bucket, s.Key(b, a.FileName()), a.Data, a.MediaType); err != nil {
			return fmt.Errorf("upload %s of %s: %w", a.HandleID, b.NodeID, err)
		}
	}

	manifest, err := b.Manifest()
	if err != nil {
		return fmt.Errorf("encode manifest for %s: %w", b.NodeID, err)
	}
	if err := s.store.Put(ctx, s.bucket, s.Key(b, ManifestFile), manifest, "application/json"); err != nil {
		return fmt.Errorf("upload manifest of %s: %w", b.NodeID, err)
	}

	logger := ctxlog.FromContext(ctx).With("bucket", s.bucket, "prefix", s.Key(b, ""))
	if p, ok := s.store.(Presigner); ok {
		u, err := p.PresignedURL(ctx, s.bucket, s.Key(b, ManifestFile), ManifestURLTTL)
		if err != nil {
			logger.Warn("Cannot presign manifest URL.", "error", err)
		} else {
			logger = logger.With("manifest_url", u)
		}
	}
	logger.Info("Tiles uploaded.", "tiles", len(b.Artifacts))
	return nil
}
