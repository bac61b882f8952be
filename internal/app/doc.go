// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package app wires manifests, nodes, the render executor, sinks and the
// status feed into a runnable application, decoupled from any specific
// entrypoint like a CLI or server.
package app
