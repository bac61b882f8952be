// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package node

import "fmt"

// Status is the render lifecycle state of a split node.
type Status int32

const (
	// StatusIdle means no source image is present.
	StatusIdle Status = iota
	// StatusReady means a source is present and no render is in flight.
	StatusReady
	// StatusLoading means a render has been issued for the current epoch.
	StatusLoading
	// StatusComplete means outputs hold one artifact per tile.
	StatusComplete
	// StatusError means the last render for the current epoch failed.
	StatusError
)

var statusNames = [...]string{"idle", "ready", "loading", "complete", "error"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int32(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return StatusIdle, fmt.Errorf("unknown status %q", name)
}
