package topology

import (
	"fmt"
	"testing"

	"github.com/specialistvlad/gridsplit/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePorts_SinglePort(t *testing.T) {
	ports := ComputePorts(geometry.DefaultConfig())
	require.Len(t, ports, 1)
	assert.Equal(t, Port{HandleID: "tile-0", Label: "r1c1", Position: 0.5}, ports[0])
}

func TestComputePorts_GridLabels(t *testing.T) {
	ports := ComputePorts(geometry.Config{Rows: 2, Columns: 5})
	require.Len(t, ports, 10)

	expected := []string{"r1c1", "r1c2", "r1c3", "r1c4", "r1c5", "r2c1", "r2c2", "r2c3", "r2c4", "r2c5"}
	for i, p := range ports {
		assert.Equal(t, fmt.Sprintf("tile-%d", i), p.HandleID)
		assert.Equal(t, expected[i], p.Label)
	}
	assert.InDelta(t, 0.15, ports[0].Position, 1e-9)
	assert.InDelta(t, 0.85, ports[9].Position, 1e-9)
}

func TestComputePorts_IndexLabelsAboveSixteen(t *testing.T) {
	cfg := geometry.Config{Rows: 8, Columns: 9}
	ports := ComputePorts(cfg)
	require.Len(t, ports, 72)
	assert.True(t, cfg.ExceedsMax())

	for i, p := range ports {
		assert.Equal(t, fmt.Sprintf("t%d", i), p.Label)
	}
	assert.Equal(t, "t0", ports[0].Label)
	assert.Equal(t, "t71", ports[71].Label)
}

func TestComputePorts_SixteenStillUsesGridLabels(t *testing.T) {
	ports := ComputePorts(geometry.Config{Rows: 4, Columns: 4})
	require.Len(t, ports, 16)
	assert.Equal(t, "r4c4", ports[15].Label)

	ports = ComputePorts(geometry.Config{Rows: 1, Columns: 10})
	assert.Equal(t, "r1c10", ports[9].Label)
}

func TestComputePorts_PositionsAreMonotonic(t *testing.T) {
	ports := ComputePorts(geometry.Config{Rows: 10, Columns: 10})
	for i := 1; i < len(ports); i++ {
		assert.Greater(t, ports[i].Position, ports[i-1].Position)
	}
	assert.InDelta(t, 0.85, ports[len(ports)-1].Position, 1e-9)
}

func TestComputePorts_Deterministic(t *testing.T) {
	cfg := geometry.Config{Rows: 3, Columns: 7}
	assert.Equal(t, ComputePorts(cfg), ComputePorts(cfg))
}

func TestComputePorts_StableHandleIDs(t *testing.T) {
	small := ComputePorts(geometry.Config{Rows: 2, Columns: 2})
	large := ComputePorts(geometry.Config{Rows: 4, Columns: 4})
	for i := range small {
		assert.Equal(t, small[i].HandleID, large[i].HandleID)
	}
}

func TestParseHandleID(t *testing.T) {
	testCases := []struct {
		handle    string
		expect    int
		expectErr bool
	}{
		{"tile-0", 0, false},
		{"tile-71", 71, false},
		{"tile-", 0, true},
		{"tile-x", 0, true},
		{"tile--1", 0, true},
		{"image", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.handle, func(t *testing.T) {
			index, err := ParseHandleID(tc.handle)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expect, index)
			assert.Equal(t, tc.handle, HandleID(index))
		})
	}
}

func TestLabelAndPosition_NoSuchTile(t *testing.T) {
	testCases := []struct {
		name  string
		cfg   geometry.Config
		index int
	}{
		{"zero config", geometry.Config{}, 0},
		{"zero columns", geometry.Config{Rows: 2}, 1},
		{"negative dimensions", geometry.Config{Rows: -2, Columns: -2}, 1},
		{"index past last tile", geometry.Config{Rows: 2, Columns: 2}, 4},
		{"negative index", geometry.Config{Rows: 2, Columns: 2}, -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				assert.Empty(t, Label(tc.cfg, tc.index))
				assert.Zero(t, Position(tc.cfg, tc.index))
			})
		})
	}
	assert.Nil(t, ComputePorts(geometry.Config{Rows: -2, Columns: -2}))
}
