// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

/*
Package nodeid addresses split nodes and their tile outputs.

Addresses are dot-separated paths. A node is `split.<name>`; one of its
outputs is `split.<name>.tile-<i>`. Segments may carry an index suffix,
e.g. `split.hero[0]`, for nodes expanded from a list.
*/
package nodeid

// Kind is the leading segment of every split node address.
const Kind = "split"

// PathSegment represents a single component of an address path, e.g., `name[index]`.
type PathSegment struct {
	Name  string
	Index int // -1 indicates no index is present.
}

// NewPathSegment creates a new path segment without an index.
func NewPathSegment(name string) PathSegment {
	return PathSegment{Name: name, Index: -1}
}

// NewPathSegmentWithIndex creates a new path segment that includes an index.
func NewPathSegmentWithIndex(name string, index int) PathSegment {
	return PathSegment{Name: name, Index: index}
}

// HasIndex returns true if the path segment has an explicit index.
func (ps PathSegment) HasIndex() bool {
	return ps.Index != -1
}

// Address is a parsed node or handle identifier.
type Address struct {
	Path []PathSegment
}

// Node returns the address of the split node called name.
func Node(name string) *Address {
	return &Address{Path: []PathSegment{NewPathSegment(Kind), NewPathSegment(name)}}
}

// Handle returns the address of one output of the node called name.
func Handle(name, handleID string) *Address {
	addr := Node(name)
	addr.Path = append(addr.Path, NewPathSegment(handleID))
	return addr
}
