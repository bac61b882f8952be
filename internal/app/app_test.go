package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/gridsplit/internal/geometry"
	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/nodestore"
	"github.com/specialistvlad/gridsplit/internal/sink"
	"github.com/specialistvlad/gridsplit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const photoManifest = `
split "photo" {
  source  = "photo.png"
  rows    = 2
  columns = 3
}
`

// newTestApp writes files to a temp dir and builds an App over it.
func newTestApp(t *testing.T, files map[string][]byte, mutate func(*Config)) (*App, string, *testutil.SafeBuffer) {
	t.Helper()
	dir := testutil.WriteFiles(t, files)
	cfg := Config{
		ManifestPath: dir,
		OutDir:       filepath.Join(dir, "out"),
		LogLevel:     "debug",
		WorkerCount:  2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	validated, err := NewConfig(cfg)
	require.NoError(t, err)

	buf := &testutil.SafeBuffer{}
	a, err := NewApp(context.Background(), buf, validated)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, dir, buf
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name      string
		cfg       Config
		expectErr string
		check     func(t *testing.T, c *Config)
	}{
		{
			name: "defaults",
			cfg:  Config{ManifestPath: "grids"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "text", c.LogFormat)
				assert.Equal(t, "info", c.LogLevel)
				assert.Equal(t, defaultWorkerCount, c.WorkerCount)
				assert.Equal(t, defaultCacheSize, c.CacheSize)
				assert.Equal(t, "none", c.Trace)
			},
		},
		{
			name: "normalizes case",
			cfg:  Config{ManifestPath: "grids", LogFormat: "JSON", LogLevel: "Debug", Trace: " STDOUT "},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "json", c.LogFormat)
				assert.Equal(t, "debug", c.LogLevel)
				assert.Equal(t, "stdout", c.Trace)
			},
		},
		{name: "missing manifest", cfg: Config{}, expectErr: "ManifestPath"},
		{name: "bad log format", cfg: Config{ManifestPath: "g", LogFormat: "xml"}, expectErr: "invalid log-format"},
		{name: "bad log level", cfg: Config{ManifestPath: "g", LogLevel: "trace"}, expectErr: "invalid log-level"},
		{name: "negative workers", cfg: Config{ManifestPath: "g", WorkerCount: -1}, expectErr: "invalid workers"},
		{name: "bad exporter", cfg: Config{ManifestPath: "g", Trace: "zipkin"}, expectErr: "invalid trace exporter"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewConfig(tc.cfg)
			if tc.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, c)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warn").String())
	assert.Equal(t, "INFO", parseLevel("nonsense").String())
}

func TestApp_RunWritesTiles(t *testing.T) {
	a, dir, logs := newTestApp(t, map[string][]byte{
		"photo.hcl": []byte(photoManifest),
		"photo.png": testutil.GradientPNG(t, 30, 20),
	}, nil)

	require.NoError(t, a.Run(context.Background()))

	st, err := a.Node("photo")
	require.NoError(t, err)
	assert.Equal(t, node.StatusComplete, st.Status())
	assert.Len(t, st.Snapshot().Outputs, 6)

	tileDir := filepath.Join(dir, "out", "photo")
	for i := 0; i < 6; i++ {
		assert.FileExists(t, filepath.Join(tileDir, "tile-"+string(rune('0'+i))+".png"))
	}
	assert.FileExists(t, filepath.Join(tileDir, sink.ManifestFile))
	assert.Contains(t, logs.String(), "Render finished.")
}

func TestApp_RunOutputDirRelativeToManifest(t *testing.T) {
	a, dir, _ := newTestApp(t, map[string][]byte{
		"grids/banner.hcl": []byte(`
split "banner" {
  source  = "../images/banner.png"
  rows    = 1
  columns = 4
  format  = "bmp"
  output {
    dir = "tiles"
  }
}
`),
		"images/banner.png": testutil.GradientPNG(t, 40, 10),
	}, nil)

	require.NoError(t, a.Run(context.Background()))

	tileDir := filepath.Join(dir, "grids", "tiles", "banner")
	for _, name := range []string{"tile-0.bmp", "tile-1.bmp", "tile-2.bmp", "tile-3.bmp"} {
		assert.FileExists(t, filepath.Join(tileDir, name))
	}
	assert.NoDirExists(t, filepath.Join(dir, "out"))
}

func TestApp_RunReportsFailedNodes(t *testing.T) {
	a, _, _ := newTestApp(t, map[string][]byte{
		"bad.hcl": []byte(`
split "bad" {
  source = "not-an-image.png"
}
`),
		"not-an-image.png": []byte("definitely not a png"),
	}, nil)

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split.bad")

	st, err := a.Node("bad")
	require.NoError(t, err)
	snap := st.Snapshot()
	assert.Equal(t, node.StatusError, snap.Status)
	assert.NotEmpty(t, snap.Error)
	assert.Empty(t, snap.Outputs)
}

func TestApp_RunWithoutSplits(t *testing.T) {
	a, _, logs := newTestApp(t, map[string][]byte{"README.md": []byte("nothing here")}, nil)
	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, logs.String(), "No splits found in manifest")
}

func TestNewApp_InvalidManifest(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string][]byte{
		"broken.hcl": []byte(`split "x" { rows = 11 }`),
	})
	cfg, err := NewConfig(Config{ManifestPath: dir})
	require.NoError(t, err)

	_, err = NewApp(context.Background(), &testutil.SafeBuffer{}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load manifest")
}

func TestApp_LoadManifestReconciles(t *testing.T) {
	a, dir, _ := newTestApp(t, map[string][]byte{
		"photo.hcl": []byte(photoManifest),
		"photo.png": testutil.GradientPNG(t, 30, 20),
	}, nil)

	st, err := a.Node("photo")
	require.NoError(t, err)
	before := st.Snapshot()
	assert.Equal(t, node.StatusReady, before.Status)

	// Changing the grid keeps the node and bumps its epoch.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.hcl"), []byte(`
split "photo" {
  source  = "photo.png"
  rows    = 4
  columns = 4
}
`), 0o644))
	require.NoError(t, a.LoadManifest())

	same, err := a.Node("photo")
	require.NoError(t, err)
	assert.Same(t, st, same)
	after := same.Snapshot()
	assert.Equal(t, 4, after.Config.Rows)
	assert.Greater(t, after.Epoch, before.Epoch)
	assert.Len(t, after.Ports, 16)

	// Removing the split releases the node.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.hcl"), []byte(`split "other" { source = "photo.png" }`), 0o644))
	require.NoError(t, a.LoadManifest())

	_, err = a.Node("photo")
	assert.ErrorIs(t, err, nodestore.ErrNotFound)
	other, err := a.Node("other")
	require.NoError(t, err)
	assert.Equal(t, node.StatusReady, other.Status())
	assert.Equal(t, 1, other.Config().TileCount())
}

func TestApp_Handler(t *testing.T) {
	a, _, _ := newTestApp(t, map[string][]byte{
		"photo.hcl": []byte(photoManifest),
		"photo.png": testutil.GradientPNG(t, 30, 20),
	}, nil)
	require.NoError(t, a.Run(context.Background()))
	h := a.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("health", func(t *testing.T) {
		rec := get("/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK\n", rec.Body.String())
	})

	t.Run("list nodes", func(t *testing.T) {
		rec := get("/nodes")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var nodes []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
		require.Len(t, nodes, 1)
		assert.Equal(t, "split.photo", nodes[0]["id"])
		assert.Equal(t, "complete", nodes[0]["status"])
		assert.Equal(t, "6 tiles", nodes[0]["count_text"])
		assert.Len(t, nodes[0]["ports"], 6)
	})

	t.Run("node with data", func(t *testing.T) {
		rec := get("/nodes/photo?data=true")
		require.Equal(t, http.StatusOK, rec.Code)

		var n map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
		outputs, ok := n["outputs"].(map[string]any)
		require.True(t, ok)
		tile, ok := outputs["tile-0"].(map[string]any)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(tile["data_url"].(string), "data:image/png;base64,"))
	})

	t.Run("unknown node", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get("/nodes/missing").Code)
	})

	t.Run("tile bytes", func(t *testing.T) {
		rec := get("/nodes/photo/tile-5")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		st, err := a.Node("photo")
		require.NoError(t, err)
		tile, ok := st.Output("tile-5")
		require.True(t, ok)
		assert.Equal(t, tile.Data, rec.Body.Bytes())
	})

	t.Run("tile out of range", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get("/nodes/photo/tile-6").Code)
	})

	t.Run("bad handle", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get("/nodes/photo/image").Code)
	})
}

func TestApp_ServerLifecycle(t *testing.T) {
	a, _, _ := newTestApp(t, map[string][]byte{"photo.hcl": []byte(photoManifest)}, func(c *Config) {
		c.Listen = "127.0.0.1:0"
	})

	require.NoError(t, a.startServer())
	addr := a.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, a.closeServer())
	assert.Empty(t, a.Addr())
	require.NoError(t, a.closeServer())
}

func TestApp_Ports(t *testing.T) {
	a, _, _ := newTestApp(t, map[string][]byte{
		"grids.hcl": []byte(`
split "small" {
  source  = "small.png"
  rows    = 2
  columns = 2
}

split "huge" {
  source  = "huge.png"
  rows    = 9
  columns = 9
}
`),
	}, nil)

	var text strings.Builder
	require.NoError(t, a.Ports(&text, false))
	out := text.String()
	assert.Contains(t, out, "split.small")
	assert.Contains(t, out, "r2c2")
	assert.Contains(t, out, "t80")
	assert.Contains(t, out, "image")

	var raw strings.Builder
	require.NoError(t, a.Ports(&raw, true))
	var listing []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw.String()), &listing))
	require.Len(t, listing, 2)
	// Nodes are listed by address.
	assert.Equal(t, "split.huge", listing[0]["node"])
	assert.Equal(t, true, listing[0]["exceeds_max"])
	assert.Len(t, listing[1]["ports"], 4)
}

func TestApp_WatchRerendersOnChanges(t *testing.T) {
	a, dir, logs := newTestApp(t, map[string][]byte{
		"photo.hcl": []byte(photoManifest),
		"photo.png": testutil.GradientPNG(t, 30, 20),
	}, func(c *Config) { c.Debounce = 20 * time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())
	watchErr := make(chan error, 1)
	go func() { watchErr <- a.Watch(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-watchErr:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Watch did not return after cancel")
		}
	}()

	st, err := a.Node("photo")
	require.NoError(t, err)

	rendered := func(cfg geometry.Config, sourceWidth int) func() bool {
		return func() bool {
			snap := st.Snapshot()
			if snap.Status != node.StatusComplete || snap.Config != cfg || len(snap.Outputs) != cfg.TileCount() {
				return false
			}
			for _, out := range snap.Outputs {
				if out.Metadata.SourceWidth != sourceWidth {
					return false
				}
			}
			return true
		}
	}

	require.Eventually(t, rendered(geometry.Config{Rows: 2, Columns: 3}, 30), 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "Watching for changes")
	}, 5*time.Second, 10*time.Millisecond)

	regrid := strings.NewReplacer("rows    = 2", "rows    = 1", "columns = 3", "columns = 2").Replace(photoManifest)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.hcl"), []byte(regrid), 0o644))
	require.Eventually(t, rendered(geometry.Config{Rows: 1, Columns: 2}, 30), 5*time.Second, 10*time.Millisecond,
		"manifest edit should re-render a 1x2 grid")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.png"), testutil.GradientPNG(t, 40, 20), 0o644))
	require.Eventually(t, rendered(geometry.Config{Rows: 1, Columns: 2}, 40), 5*time.Second, 10*time.Millisecond,
		"source edit should re-render from the new image")

	out, ok := st.Output("tile-1")
	require.True(t, ok)
	assert.Equal(t, 20, out.Metadata.SourceHeight)
	assert.Equal(t, 20, out.Metadata.Width)
}
