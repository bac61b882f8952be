// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package source resolves image references into bytes and decodes them.
//
// A split node treats its source as an opaque reference. The reference is
// resolved lazily, on the render path, so that IO and decode failures surface
// as render errors on the node instead of blocking config edits.
package source

import (
	"crypto/sha256"
	"encoding/hex"
)

// Image is an opaque source reference, optionally carrying its bytes.
type Image struct {
	// Ref is a filesystem path, a data: URL, or an s3://bucket/key URL.
	Ref string
	// Data holds the encoded bytes once resolved.
	Data []byte
	// Digest is the hex sha256 of Data, empty until resolved.
	Digest string
}

// FromRef returns an unresolved Image.
func FromRef(ref string) Image {
	return Image{Ref: ref}
}

// FromBytes returns a resolved Image.
func FromBytes(ref string, data []byte) Image {
	return Image{Ref: ref, Data: data, Digest: digest(data)}
}

// IsZero reports whether no source is set.
func (i Image) IsZero() bool {
	return i.Ref == "" && len(i.Data) == 0
}

// Resolved reports whether Data is present.
func (i Image) Resolved() bool {
	return len(i.Data) > 0
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
