// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/topology"
)

// Dir writes batches under <root>/<name>/.
type Dir struct {
	root string
}

// NewDir creates a directory sink rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Path is the directory a node's tiles are written to.
func (d *Dir) Path(b Batch) string {
	return filepath.Join(d.root, b.Name())
}

func (d *Dir) Write(ctx context.Context, b Batch) error {
	dir := d.Path(b)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", dir, err)
	}
	if err := removeTiles(dir); err != nil {
		return err
	}

	for _, a := range b.Artifacts {
		if err := writeFileAtomic(filepath.Join(dir, a.FileName()), a.Data); err != nil {
			return err
		}
	}

	manifest, err := b.Manifest()
	if err != nil {
		return fmt.Errorf("encode manifest for %s: %w", b.NodeID, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return err
	}

	ctxlog.FromContext(ctx).Info("Tiles written.", "dir", dir, "tiles", len(b.Artifacts))
	return nil
}

// removeTiles deletes tiles left by an earlier, larger grid.
func removeTiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read output dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if _, err := topology.ParseHandleID(base); err != nil {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove stale tile %s: %w", name, err)
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
