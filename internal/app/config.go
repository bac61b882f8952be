// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/gridsplit/internal/s3store"
	"github.com/specialistvlad/gridsplit/internal/tracing"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ManifestPath string // .hcl file or directory

	// OutDir receives tiles of splits that declare no output block.
	OutDir string

	LogFormat   string
	LogLevel    string
	WorkerCount int
	// Listen is the HTTP address for /health, /nodes and the status feed.
	// Empty disables the server.
	Listen string
	// Trace selects the span exporter: "none" or "stdout".
	Trace string
	// CacheSize is how many decoded source images are kept.
	CacheSize int
	// Debounce is how long watched files must settle before re-rendering.
	Debounce time.Duration

	S3 s3store.Config
}

const (
	defaultWorkerCount = 4
	defaultCacheSize   = 16
)

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if strings.TrimSpace(cfg.ManifestPath) == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	if cfg.WorkerCount < 0 {
		return nil, fmt.Errorf("invalid workers %d: must not be negative", cfg.WorkerCount)
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = defaultWorkerCount
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}

	cfg.Trace = strings.ToLower(strings.TrimSpace(cfg.Trace))
	switch cfg.Trace {
	case "":
		cfg.Trace = tracing.ExporterNone
	case tracing.ExporterNone, tracing.ExporterStdout:
	default:
		return nil, fmt.Errorf("invalid trace exporter %q: must be %q or %q", cfg.Trace, tracing.ExporterNone, tracing.ExporterStdout)
	}

	if cfg.S3.Enabled() && (cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "") {
		return nil, errors.New("s3 endpoint is set but access key or secret key is missing")
	}

	return &cfg, nil
}
