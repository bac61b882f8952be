package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	return root
}

func TestFindFilesByExtension(t *testing.T) {
	root := writeTree(t, "a.hcl", "b.txt", "sub/c.hcl", ".git/d.hcl", "sub/.cache/e.hcl")

	files, err := FindFilesByExtension(root, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.hcl"),
		filepath.Join(root, "sub", "c.hcl"),
	}, files)
}

func TestFindFilesByExtension_FileRoot(t *testing.T) {
	root := writeTree(t, "a.hcl")

	files, err := FindFilesByExtension(filepath.Join(root, "a.hcl"), ".hcl")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFindFilesByExtension_MissingRoot(t *testing.T) {
	_, err := FindFilesByExtension(filepath.Join(t.TempDir(), "nope"), ".hcl")
	assert.Error(t, err)
}

func TestFindFilesByExtension_EmptyExtensionPanics(t *testing.T) {
	assert.Panics(t, func() { _, _ = FindFilesByExtension(".", "") })
}

func TestFindDirs(t *testing.T) {
	root := writeTree(t, "a.hcl", "sub/deeper/c.hcl", ".git/d")

	dirs, err := FindDirs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{root, filepath.Join(root, "sub"), filepath.Join(root, "sub", "deeper")}, dirs)

	dirs, err = FindDirs(filepath.Join(root, "a.hcl"))
	require.NoError(t, err)
	assert.Equal(t, []string{root}, dirs)
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden(".git"))
	assert.False(t, IsHidden("."))
	assert.False(t, IsHidden(".."))
	assert.False(t, IsHidden("src"))
}
