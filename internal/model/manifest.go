// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Manifest, the root container for every split declared
// in a user's .hcl files.
//
// Why a Manifest?
//
// Users may spread their splits across many files and directories. Loading
// them into one Manifest lets names be checked for uniqueness across the whole
// workspace, and gives the watcher the full list of files to observe.
package model

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/fsutil"
)

// ManifestExtension is the extension of manifest files.
const ManifestExtension = ".hcl"

// Manifest is every split found under a path.
type Manifest struct {
	Splits []*Split
	Files  []string
}

// NewManifest creates and returns an initialized Manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Splits: []*Split{},
	}
}

// Lookup returns the split named name.
func (m *Manifest) Lookup(name string) (*Split, bool) {
	idx := slices.IndexFunc(m.Splits, func(s *Split) bool { return s.Name == name })
	if idx < 0 {
		return nil, false
	}
	return m.Splits[idx], true
}

// hclManifestFile represents the top-level structure of a manifest file.
type hclManifestFile struct {
	Splits []*hclSplit `hcl:"split,block"`
	Remain hcl.Body    `hcl:",remain"`
}

// ParseManifest parses the HCL in src, attributing it to filename.
func ParseManifest(filename string, src []byte) ([]*Split, hcl.Diagnostics) {
	return parseManifest(hclparse.NewParser(), filename, src, newEvalContext())
}

func parseManifest(parser *hclparse.Parser, filename string, src []byte, evalCtx *hcl.EvalContext) ([]*Split, hcl.Diagnostics) {
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	var parsedFile hclManifestFile
	diags = append(diags, gohcl.DecodeBody(hclFile.Body, evalCtx, &parsedFile)...)
	if diags.HasErrors() {
		return nil, diags
	}

	// Unknown top-level blocks and attributes are ignored so other tools can
	// share the file.
	splits := make([]*Split, 0, len(parsedFile.Splits))
	for _, parsedSplit := range parsedFile.Splits {
		split, splitDiags := newSplitFromHCL(parsedSplit, filename, evalCtx)
		diags = append(diags, splitDiags...)
		if split != nil {
			splits = append(splits, split)
		}
	}
	diags = append(diags, checkUniqueNames(splits)...)
	if diags.HasErrors() {
		return nil, diags
	}
	return splits, diags
}

// checkUniqueNames reports every split whose name was already declared.
func checkUniqueNames(splits []*Split) hcl.Diagnostics {
	var diags hcl.Diagnostics
	seen := make(map[string]*Split, len(splits))
	for _, s := range splits {
		if first, ok := seen[s.Name]; ok {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate split block",
				Detail:   fmt.Sprintf("A split named %q was already declared at %s.", s.Name, first.DeclRange),
				Subject:  s.DeclRange.Ptr(),
			})
			continue
		}
		seen[s.Name] = s
	}
	return diags
}

// LoadManifestsRecursively finds and parses all HCL files in a given path into
// a Manifest.
func LoadManifestsRecursively(ctx context.Context, path string) (*Manifest, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading manifest from path", "path", path)

	files, err := fsutil.FindFilesByExtension(path, ManifestExtension)
	if err != nil {
		return nil, fmt.Errorf("failed to find manifest files in %s: %w", path, err)
	}

	manifest := NewManifest()
	manifest.Files = files
	if len(files) == 0 {
		logger.Warn("No .hcl manifest files found in path, returning empty manifest", "path", path)
		return manifest, nil
	}

	parser := hclparse.NewParser()
	evalCtx := newEvalContext()
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest file %s: %w", file, err)
		}
		splits, diags := parseManifest(parser, file, src, evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to load manifest file %s: %w", file, diags)
		}
		manifest.Splits = append(manifest.Splits, splits...)
	}

	if diags := checkUniqueNames(manifest.Splits); diags.HasErrors() {
		return nil, fmt.Errorf("invalid manifest in %s: %w", path, diags)
	}

	logger.Debug("Manifest loaded.", "files", len(files), "splits", len(manifest.Splits))
	return manifest, nil
}
