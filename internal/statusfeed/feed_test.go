package statusfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/specialistvlad/gridsplit/internal/geometry"
	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/render"
	"github.com/specialistvlad/gridsplit/internal/source"
	"github.com/specialistvlad/gridsplit/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(cfg geometry.Config, status node.Status, epoch uint64, tiles int) node.Snapshot {
	outputs := map[string]render.Artifact{}
	for i := tiles - 1; i >= 0; i-- {
		h := topology.HandleID(i)
		outputs[h] = render.Artifact{
			HandleID:  h,
			Data:      make([]byte, 10+i),
			MediaType: "image/png",
			Metadata:  render.Metadata{TileRect: geometry.TileRect{Index: i, Col: i}},
		}
	}
	return node.Snapshot{
		ID:      "split.hero",
		Config:  cfg,
		Status:  status,
		Outputs: outputs,
		Ports:   topology.ComputePorts(cfg),
		Epoch:   epoch,
	}
}

func TestNewPortsPayload(t *testing.T) {
	p := NewPortsPayload(snapshot(geometry.Config{Rows: 2, Columns: 3}, node.StatusReady, 1, 0))

	assert.Equal(t, "image", p.Input)
	assert.Equal(t, 6, p.TileCount)
	assert.Equal(t, "6 tiles", p.CountText)
	assert.False(t, p.ExceedsMax)
	assert.Empty(t, p.Warning)
	require.Len(t, p.Ports, 6)
	assert.Equal(t, "r2c3", p.Ports[5].Label)
	assert.Len(t, p.Vertical, 2)
	assert.Len(t, p.Horizontal, 1)
}

func TestNewPortsPayload_SingleTileHasEmptyGuides(t *testing.T) {
	p := NewPortsPayload(snapshot(geometry.DefaultConfig(), node.StatusIdle, 0, 0))

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"vertical":[]`)
	assert.Contains(t, string(data), `"horizontal":[]`)
	assert.InDelta(t, 0.5, p.Ports[0].Position, 1e-9)
}

func TestNewPortsPayload_ExceedsMax(t *testing.T) {
	p := NewPortsPayload(snapshot(geometry.Config{Rows: 9, Columns: 8}, node.StatusReady, 1, 0))

	assert.True(t, p.ExceedsMax)
	assert.Equal(t, "Max 64 tiles exceeded", p.Warning)
	assert.Equal(t, "t71", p.Ports[71].Label)
}

func TestNewOutputsPayload_OrderedWithoutPixels(t *testing.T) {
	p := NewOutputsPayload(snapshot(geometry.Config{Rows: 1, Columns: 3}, node.StatusComplete, 2, 3))

	require.Len(t, p.Outputs, 3)
	for i, tile := range p.Outputs {
		assert.Equal(t, topology.HandleID(i), tile.Handle)
		assert.Equal(t, 10+i, tile.Size)
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "base64")
}

func TestNewSnapshotPayload(t *testing.T) {
	snap := snapshot(geometry.DefaultConfig(), node.StatusError, 4, 0)
	snap.Error = "failed to load image 'x.png': boom"
	snap.HasSource = true
	snap.SourceRef = "x.png"

	data, err := json.Marshal(NewSnapshotPayload(snap))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "split.hero", decoded["node"])
	assert.Equal(t, "error", decoded["status"])
	assert.Equal(t, snap.Error, decoded["error"])
	assert.Equal(t, "x.png", decoded["source"])
	assert.Contains(t, decoded, "ports")
	assert.Contains(t, decoded, "outputs")
}

func eventNames(events []Event) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Name)
	}
	return names
}

func TestDiff(t *testing.T) {
	cfg := geometry.Config{Rows: 2, Columns: 2}
	ready := snapshot(cfg, node.StatusReady, 1, 0)
	loading := snapshot(cfg, node.StatusLoading, 1, 0)
	complete := snapshot(cfg, node.StatusComplete, 1, 4)
	regrid := snapshot(geometry.Config{Rows: 3, Columns: 2}, node.StatusReady, 2, 0)

	testCases := []struct {
		name string
		prev *node.Snapshot
		cur  node.Snapshot
		want []string
	}{
		{"first sight", nil, ready, []string{EventStatus, EventPorts, EventOutputs}},
		{"no change", &ready, ready, []string{}},
		{"begin", &ready, loading, []string{EventStatus}},
		{"complete", &loading, complete, []string{EventStatus, EventOutputs}},
		{"config edit", &complete, regrid, []string{EventStatus, EventPorts, EventOutputs}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, eventNames(Diff(tc.prev, tc.cur)))
		})
	}
}

func TestDiff_ErrorChange(t *testing.T) {
	cfg := geometry.DefaultConfig()
	a := snapshot(cfg, node.StatusError, 1, 0)
	a.Error = "first"
	b := a
	b.Error = "second"

	assert.Equal(t, []string{EventStatus}, eventNames(Diff(&a, b)))
}

func TestWriteEvent(t *testing.T) {
	testCases := []struct {
		name string
		args []any
		want string
	}{
		{"single payload", []any{map[string]any{"node": "split.hero"}}, `node:status {"node":"split.hero"}` + "\n"},
		{"no payload", nil, "node:status null\n"},
		{"several payloads", []any{1, "a"}, `node:status [1,"a"]` + "\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteEvent(&buf, EventStatus, tc.args))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestTail_InvalidURL(t *testing.T) {
	err := Tail(context.Background(), TailOptions{URL: "not a url"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status feed URL")
}

func TestNodeArg(t *testing.T) {
	id, ok := nodeArg([]any{"split.hero.tile-3"})
	require.True(t, ok)
	assert.Equal(t, "split.hero", id)

	_, ok = nodeArg([]any{"runner.hero"})
	assert.False(t, ok)
	_, ok = nodeArg([]any{42})
	assert.False(t, ok)
	_, ok = nodeArg(nil)
	assert.False(t, ok)
}

func TestFeed_PublishTracksLastSnapshot(t *testing.T) {
	f := New(context.Background(), func() []node.Snapshot { return nil })
	defer f.Close()

	snap := snapshot(geometry.DefaultConfig(), node.StatusReady, 1, 0)
	f.Publish(snap)

	f.mu.Lock()
	got, ok := f.last["split.hero"]
	f.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.Epoch)

	f.Forget("split.hero")
	f.mu.Lock()
	_, ok = f.last["split.hero"]
	f.mu.Unlock()
	assert.False(t, ok)
}

func TestOutdated(t *testing.T) {
	at := func(epoch, seq uint64) node.Snapshot { return node.Snapshot{Epoch: epoch, Seq: seq} }

	testCases := []struct {
		name string
		last node.Snapshot
		cur  node.Snapshot
		want bool
	}{
		{"newer change", at(1, 3), at(1, 4), false},
		{"newer epoch", at(1, 3), at(2, 4), false},
		{"same change", at(1, 3), at(1, 3), true},
		{"earlier change", at(1, 3), at(1, 2), true},
		{"older epoch", at(2, 4), at(1, 3), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Outdated(tc.last, tc.cur))
		})
	}
}

func TestFeed_PublishDropsOutdatedSnapshots(t *testing.T) {
	f := New(context.Background(), func() []node.Snapshot { return nil })
	defer f.Close()

	ready := snapshot(geometry.Config{Rows: 1, Columns: 1}, node.StatusReady, 2, 0)
	ready.Seq = 3
	complete := snapshot(geometry.Config{Rows: 1, Columns: 2}, node.StatusComplete, 1, 2)
	complete.Seq = 2

	f.Publish(ready)
	f.Publish(complete)

	f.mu.Lock()
	got := f.last["split.hero"]
	f.mu.Unlock()
	assert.Equal(t, node.StatusReady, got.Status)
	assert.Equal(t, uint64(2), got.Epoch)
	assert.Empty(t, got.Outputs)
}

func TestFeed_PublishKeepsLatestWhenListenersRace(t *testing.T) {
	f := New(context.Background(), func() []node.Snapshot { return nil })
	defer f.Close()

	st, err := node.New("split.hero", geometry.Config{Rows: 1, Columns: 2})
	require.NoError(t, err)

	// Hold the completion snapshot back until a later edit has been published.
	held := make(chan struct{})
	release := make(chan struct{})
	st.OnChange(func(s node.Snapshot) {
		if s.Status == node.StatusComplete {
			close(held)
			<-release
		}
	})
	st.OnChange(f.Publish)

	require.NoError(t, st.SetSource(source.FromRef("hero.png")))
	ticket, err := st.Begin()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		st.Complete(ticket, []render.Artifact{
			{HandleID: topology.HandleID(0)},
			{HandleID: topology.HandleID(1)},
		})
	}()

	select {
	case <-held:
	case <-time.After(5 * time.Second):
		t.Fatal("completion was never delivered")
	}
	require.NoError(t, st.SetConfig(geometry.Config{Rows: 1, Columns: 1}))
	close(release)
	<-done

	f.mu.Lock()
	got := f.last["split.hero"]
	f.mu.Unlock()
	assert.Equal(t, node.StatusReady, got.Status)
	assert.Equal(t, st.Snapshot().Epoch, got.Epoch)
	assert.Equal(t, geometry.Config{Rows: 1, Columns: 1}, got.Config)
	assert.Empty(t, got.Outputs)
}
