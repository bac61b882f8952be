package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridsplit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const heroManifest = `
split "hero" {
  source  = "hero.png"
  rows    = 2
  columns = 2
}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func heroDir(t *testing.T) string {
	return testutil.WriteFiles(t, map[string][]byte{
		"hero.hcl": []byte(heroManifest),
		"hero.png": testutil.GradientPNG(t, 20, 20),
	})
}

func TestRoot_NoArgsPrintsHelp(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "GRIDSPLIT_")
}

func TestRoot_RendersPositionalManifest(t *testing.T) {
	dir := heroDir(t)
	outDir := filepath.Join(dir, "tiles")

	_, err := execute(t, dir, "--out", outDir, "--log-level", "error")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "hero", "tile-3.png"))
}

func TestRun_OutDirFromEnvironment(t *testing.T) {
	dir := heroDir(t)
	outDir := filepath.Join(dir, "from-env")
	t.Setenv("GRIDSPLIT_OUT", outDir)

	_, err := execute(t, "run", "--manifest", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "hero", "tile-0.png"))
}

func TestPorts_JSON(t *testing.T) {
	dir := heroDir(t)

	out, err := execute(t, "ports", dir, "--json", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, `"node":"split.hero"`)
	assert.Contains(t, out, `"label":"r2c2"`)
}

func TestExitErrors(t *testing.T) {
	dir := heroDir(t)

	testCases := []struct {
		name     string
		args     []string
		contains string
	}{
		{name: "unknown flag", args: []string{"--this-is-not-a-valid-flag"}, contains: "unknown flag"},
		{name: "bad log format", args: []string{"run", dir, "--log-format", "xml"}, contains: "invalid log-format"},
		{name: "bad workers", args: []string{"run", dir, "--workers", "-3"}, contains: "invalid workers"},
		{name: "missing manifest", args: []string{"ports"}, contains: "manifest path is required"},
		{name: "tail bad level", args: []string{"tail", "http://localhost:1", "--log-level", "loud"}, contains: "invalid log-level"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.Error(t, err)
			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr), "expected ExitError, got %T", err)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.contains)
		})
	}
}

func TestRun_InvalidManifestIsNotUsageError(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string][]byte{
		"bad.hcl": []byte("split \"bad\" {\n  source  = \"x.png\"\n  columns = 0\n}\n"),
	})

	_, err := execute(t, "run", dir)
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
	assert.Contains(t, err.Error(), "failed to load manifest")
}

func TestTail_RequiresURL(t *testing.T) {
	_, err := execute(t, "tail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
