// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package render

import "fmt"

// DecodeError means the source image could not be read or decoded.
type DecodeError struct {
	Ref string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("failed to load image: %v", e.Err)
	}
	return fmt.Sprintf("failed to load image '%s': %v", e.Ref, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError means a tile could not be cropped or re-encoded. A single
// EncodeError fails the whole render.
type EncodeError struct {
	HandleID string
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode %s: %v", e.HandleID, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
