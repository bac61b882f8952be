// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model provides the Go representation of gridsplit HCL manifests
// and the cty values split nodes expose to the surrounding graph.
//
// # Core Concepts
//
//   - Manifest: every `split` block found under a path, across any number of
//     .hcl files.
//
//   - Split: one declared node. It names a source image reference, a grid
//     shape, an optional tile format and where rendered tiles should go.
//
//   - FSInfo: the file a Split was declared in, used for error reporting and
//     for resolving relative source paths.
//
// Why validate rows and columns here?
//
// The manifest is a boundary where user input enters the system. Values
// outside the accepted range are reported as HCL diagnostics pointing at the
// offending attribute, so they never reach a node.
//
// Why cty for outputs?
//
// Downstream consumers address tiles through handle ids. Exposing a node's
// outputs and ports as cty values lets them be referenced from HCL
// expressions and serialized to JSON with the same type information.
package model
