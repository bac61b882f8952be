// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package nodestore defines the registry of live split nodes.
//
// # Why a Node Store Exists
//
// Every split node owns its state and artifacts, but the surrounding
// environment (manifest loading, the watcher, the status feed and the HTTP
// surface) needs to find nodes by address. The store is that lookup. It does
// not interpret node state; it only tracks which nodes exist.
//
// # Lifecycle
//
// Nodes are Put when a manifest declares them and Deleted when the manifest
// drops them. Delete releases the node, which discards any render still in
// flight for it.
package nodestore

import (
	"context"
	"errors"

	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/nodeid"
)

// ErrNotFound is returned when no node is registered at an address.
var ErrNotFound = errors.New("node not found")

// Store tracks live split nodes by address.
//
// Implementations MUST be safe for concurrent use: workers, the watcher and
// HTTP handlers all query the store at the same time.
type Store interface {
	// Put registers st at id, replacing (and releasing) any previous node.
	Put(ctx context.Context, id nodeid.Address, st *node.State) error

	// Get returns the node at id or ErrNotFound.
	Get(ctx context.Context, id nodeid.Address) (*node.State, error)

	// All returns every node ordered by address.
	All(ctx context.Context) ([]*node.State, error)

	// Delete removes and releases the node at id. Deleting an unknown
	// address is not an error.
	Delete(ctx context.Context, id nodeid.Address) error
}
