// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the nodestore.Store interface.
//
// # Concurrency Model
//
// Nodes are keyed by their canonical address string in a sync.Map. The key
// space is small and changes only when manifests are (re)loaded, while reads
// come from many goroutines, which is the access pattern sync.Map is built
// for.
package inmemorystore

import (
	"context"
	"sort"
	"sync"

	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/nodeid"
	"github.com/specialistvlad/gridsplit/internal/nodestore"
)

// Store is an in-memory implementation of nodestore.Store.
type Store struct {
	nodes sync.Map // Key: address string, Value: *node.State
}

// New creates a new, empty in-memory node store.
func New() nodestore.Store {
	return &Store{}
}

// Put registers st at id, releasing any node previously stored there.
func (s *Store) Put(ctx context.Context, id nodeid.Address, st *node.State) error {
	if prev, loaded := s.nodes.Swap(id.String(), st); loaded {
		if old := prev.(*node.State); old != st {
			old.Release()
		}
	}
	return nil
}

// Get returns the node at id.
func (s *Store) Get(ctx context.Context, id nodeid.Address) (*node.State, error) {
	v, ok := s.nodes.Load(id.String())
	if !ok {
		return nil, nodestore.ErrNotFound
	}
	return v.(*node.State), nil
}

// All returns every node ordered by address.
func (s *Store) All(ctx context.Context) ([]*node.State, error) {
	type entry struct {
		key string
		st  *node.State
	}
	var entries []entry
	s.nodes.Range(func(k, v any) bool {
		entries = append(entries, entry{key: k.(string), st: v.(*node.State)})
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	out := make([]*node.State, len(entries))
	for i, e := range entries {
		out[i] = e.st
	}
	return out, nil
}

// Delete removes and releases the node at id.
func (s *Store) Delete(ctx context.Context, id nodeid.Address) error {
	if v, loaded := s.nodes.LoadAndDelete(id.String()); loaded {
		v.(*node.State).Release()
	}
	return nil
}
