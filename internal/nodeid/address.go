// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package nodeid

import (
	"fmt"
	"slices"
	"strings"
)

// String serializes the Address into its canonical path string representation.
func (a *Address) String() string {
	if a == nil {
		return ""
	}

	var sb strings.Builder
	for i, segment := range a.Path {
		if i > 0 {
			sb.WriteRune('.')
		}
		sb.WriteString(segment.Name)
		if segment.HasIndex() {
			fmt.Fprintf(&sb, "[%d]", segment.Index)
		}
	}
	return sb.String()
}

// Equal checks for deep equality between two Address pointers.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	return slices.Equal(a.Path, other.Path)
}

// IsHandle reports whether the address points at a node output.
func (a *Address) IsHandle() bool {
	return a != nil && len(a.Path) == 3 && a.Path[0].Name == Kind
}

// NodeAddress strips a handle segment, returning the owning node address.
func (a *Address) NodeAddress() *Address {
	if a == nil || len(a.Path) < 2 {
		return a
	}
	return &Address{Path: slices.Clone(a.Path[:2])}
}

// NodeName returns the node name segment, or "" when a is not a split address.
func (a *Address) NodeName() string {
	if a == nil || len(a.Path) < 2 || a.Path[0].Name != Kind {
		return ""
	}
	return a.Path[1].Name
}

// HandleID returns the output handle segment, or "".
func (a *Address) HandleID() string {
	if !a.IsHandle() {
		return ""
	}
	return a.Path[2].Name
}
