// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package model

import "path/filepath"

// FSInfo links a parsed object back to the file it was declared in.
type FSInfo struct {
	FilePath string
}

// NewFSInfo creates an FSInfo for filePath.
func NewFSInfo(filePath string) *FSInfo {
	return &FSInfo{
		FilePath: filePath,
	}
}

// Dir is the directory holding the file; relative source paths resolve
// against it.
func (f *FSInfo) Dir() string {
	if f == nil || f.FilePath == "" {
		return ""
	}
	return filepath.Dir(f.FilePath)
}
