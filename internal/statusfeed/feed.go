// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package statusfeed streams node changes to socket.io clients.
//
// A new client receives a node:snapshot with every node, then incremental
// node:status, node:ports and node:outputs events. Sending `subscribe` with a
// node address narrows the stream to that node; `unsubscribe` widens it
// again. Payloads never carry pixel data.
package statusfeed

import (
	"context"
	"net/http"
	"sync"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/nodeid"
	"github.com/zishang520/socket.io/v2/socket"
)

const allRoom socket.Room = "nodes"

// SnapshotSource lists the current state of every node.
type SnapshotSource func() []node.Snapshot

// Feed is a socket.io server publishing node changes.
type Feed struct {
	srv       *socket.Server
	snapshots SnapshotSource
	ctx       context.Context

	mu   sync.Mutex
	last map[string]node.Snapshot
}

// New creates a Feed. snapshots is consulted when a client connects or
// subscribes.
func New(ctx context.Context, snapshots SnapshotSource) *Feed {
	f := &Feed{
		srv:       socket.NewServer(nil, nil),
		snapshots: snapshots,
		ctx:       ctx,
		last:      make(map[string]node.Snapshot),
	}
	f.srv.On("connection", f.onConnection)
	return f
}

func nodeRoom(id string) socket.Room {
	return socket.Room("node:" + id)
}

func (f *Feed) onConnection(clients ...any) {
	client, ok := clients[0].(*socket.Socket)
	if !ok {
		return
	}
	logger := ctxlog.FromContext(f.ctx).With("sid", client.Id())
	logger.Debug("Status feed client connected.")

	client.Join(allRoom)
	f.sendSnapshot(client, "")

	client.On(EventSubscribe, func(args ...any) {
		id, ok := nodeArg(args)
		if !ok {
			logger.Warn("Ignoring subscribe without a valid node address.", "args", args)
			return
		}
		client.Leave(allRoom)
		client.Join(nodeRoom(id))
		logger.Debug("Client subscribed.", "node", id)
		f.sendSnapshot(client, id)
	})
	client.On(EventUnsubscribe, func(args ...any) {
		if id, ok := nodeArg(args); ok {
			client.Leave(nodeRoom(id))
		}
		client.Join(allRoom)
		f.sendSnapshot(client, "")
	})
	client.On("disconnect", func(reason ...any) {
		logger.Debug("Status feed client disconnected.", "reason", reason)
	})
}

func nodeArg(args []any) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	raw, ok := args[0].(string)
	if !ok {
		return "", false
	}
	addr, err := nodeid.ParseSplit(raw)
	if err != nil {
		return "", false
	}
	return addr.NodeAddress().String(), true
}

// sendSnapshot emits the snapshot of every node, or of only the node id.
func (f *Feed) sendSnapshot(client *socket.Socket, id string) {
	if f.snapshots == nil {
		return
	}
	payload := []SnapshotPayload{}
	for _, snap := range f.snapshots() {
		if id != "" && snap.ID != id {
			continue
		}
		payload = append(payload, NewSnapshotPayload(snap))
	}
	if err := client.Emit(EventSnapshot, payload); err != nil {
		ctxlog.FromContext(f.ctx).Warn("Failed to send snapshot.", "error", err)
	}
}

// Publish emits the events that changed since the last published snapshot of
// the same node. Snapshots older than the last one published are dropped, so
// listeners may deliver them in any order.
func (f *Feed) Publish(snap node.Snapshot) {
	// Held while emitting so events of one node stay in order.
	f.mu.Lock()
	defer f.mu.Unlock()

	var prev *node.Snapshot
	if p, ok := f.last[snap.ID]; ok {
		if Outdated(p, snap) {
			ctxlog.FromContext(f.ctx).Debug("Dropped outdated snapshot.", "node", snap.ID, "seq", snap.Seq, "last_seq", p.Seq)
			return
		}
		prev = &p
	}
	f.last[snap.ID] = snap

	for _, ev := range Diff(prev, snap) {
		if err := f.srv.To(allRoom, nodeRoom(snap.ID)).Emit(ev.Name, ev.Payload); err != nil {
			ctxlog.FromContext(f.ctx).Warn("Failed to publish event.", "event", ev.Name, "node", snap.ID, "error", err)
		}
	}
}

// Forget drops the remembered state of a removed node.
func (f *Feed) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.last, id)
}

// Handler serves the socket.io endpoint. Mount it at /socket.io/.
func (f *Feed) Handler() http.Handler {
	return f.srv.ServeHandler(nil)
}

// Close disconnects every client.
func (f *Feed) Close() {
	f.srv.Close(nil)
}
