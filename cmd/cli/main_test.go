package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridsplit/internal/cli"
	"github.com/specialistvlad/gridsplit/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestRun_RendersManifest(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := testutil.WriteFiles(t, map[string][]byte{
		"grid.hcl": []byte("split \"tiles\" {\n  source  = \"in.png\"\n  rows    = 3\n  columns = 1\n}\n"),
		"in.png":   testutil.GradientPNG(t, 12, 9),
	})
	outDir := filepath.Join(dir, "out")
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"run", dir, "--out", outDir})

	// --- Assert ---
	require.NoError(t, err)
	for _, name := range []string{"tile-0.png", "tile-1.png", "tile-2.png"} {
		_, statErr := os.Stat(filepath.Join(outDir, "tiles", name))
		require.NoError(t, statErr, "expected %s to be written", name)
	}
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The help flag prints usage and succeeds.
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error for help")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_InvalidManifest(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A syntax error is reported as a load failure, not a panic.
	dir := testutil.WriteFiles(t, map[string][]byte{
		"main.hcl": []byte("split \"a\" {\n  source = \"a.png\"\n"),
	})
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{dir})

	// --- Assert ---
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load manifest")
}
