// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/specialistvlad/gridsplit/internal/app"
	"github.com/specialistvlad/gridsplit/internal/ctxlog"
	"github.com/specialistvlad/gridsplit/internal/s3store"
	"github.com/specialistvlad/gridsplit/internal/statusfeed"
	"github.com/specialistvlad/gridsplit/internal/watch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable that maps onto a flag, e.g.
// GRIDSPLIT_LOG_LEVEL for --log-level.
const EnvPrefix = "GRIDSPLIT"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// Execute runs the gridsplit command line with args. Help and usage go to out.
func Execute(ctx context.Context, out io.Writer, args []string) error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded.", "error", err)
	}
	cmd := NewRootCommand(out)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Each call gets its own viper
// instance so commands can be built repeatedly in tests.
func NewRootCommand(out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "gridsplit [MANIFEST_PATH]",
		Short: "Split raster images into grids of tiles.",
		Long: `gridsplit cuts images into rows x columns tiles as declared by split blocks
in .hcl manifests, and writes the tiles to directories or S3 buckets.

MANIFEST_PATH is a single .hcl file or a directory searched recursively.
Every flag can also be set through a GRIDSPLIT_* environment variable.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && v.GetString("manifest") == "" {
				return cmd.Help()
			}
			return runOnce(cmd, v, args)
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	flags := root.PersistentFlags()
	flags.StringP("manifest", "m", "", "Path to the manifest file or directory.")
	flags.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flags.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.Int("workers", 4, "Number of concurrent render workers.")
	flags.StringP("out", "o", "tiles", "Directory for splits without an output block.")
	flags.String("listen", "", "Address for the HTTP API and status feed, e.g. ':8080'. Empty disables it.")
	flags.String("trace", "none", "Span exporter. Options: 'none' or 'stdout'.")
	flags.Int("cache-size", 16, "Number of decoded source images kept in memory.")
	flags.String("s3-endpoint", "", "S3 endpoint for s3:// sources and bucket outputs.")
	flags.String("s3-region", "", "S3 region.")
	flags.String("s3-access-key", "", "S3 access key.")
	flags.String("s3-secret-key", "", "S3 secret key.")
	flags.Bool("s3-ssl", true, "Use TLS for the S3 endpoint.")

	root.AddCommand(
		newRunCommand(v),
		newWatchCommand(v),
		newPortsCommand(v),
		newTailCommand(v),
	)
	return root
}

func newRunCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run [MANIFEST_PATH]",
		Short: "Render every split once.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, v, args)
		},
	}
}

func newWatchCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [MANIFEST_PATH]",
		Short: "Render every split and re-render when manifests or sources change.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v, args)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Watch(cmd.Context())
		},
	}
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "How long changed files must settle before re-rendering.")
	return cmd
}

func newPortsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports [MANIFEST_PATH]",
		Short: "List the output ports of every split without rendering.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v, args)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Ports(cmd.OutOrStdout(), v.GetBool("json"))
		},
	}
	cmd.Flags().Bool("json", false, "Print the ports as JSON.")
	return cmd
}

func newTailCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail URL",
		Short: "Stream node status events from a running gridsplit server.",
		Example: `  gridsplit tail http://localhost:8080
  gridsplit tail http://localhost:8080 --node split.hero`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := stderrLogger(cmd.ErrOrStderr(), v.GetString("log-format"), v.GetString("log-level"))
			if err != nil {
				return err
			}
			ctx := ctxlog.WithLogger(cmd.Context(), logger)

			return statusfeed.Tail(ctx, statusfeed.TailOptions{
				URL:            args[0],
				Node:           v.GetString("node"),
				ConnectTimeout: v.GetDuration("timeout"),
			}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("node", "", "Only stream events of this node, e.g. split.hero.")
	cmd.Flags().Duration("timeout", 10*time.Second, "How long to wait for the connection.")
	return cmd
}

// stderrLogger builds the logger for commands that do not start an App.
func stderrLogger(w io.Writer, format, levelName string) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, usageError(fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", levelName))
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, usageError(fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", format))
	}
}

func runOnce(cmd *cobra.Command, v *viper.Viper, args []string) error {
	a, err := newApp(cmd, v, args)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(cmd.Context())
}

func newApp(cmd *cobra.Command, v *viper.Viper, args []string) (*app.App, error) {
	cfg, err := configFrom(v, args)
	if err != nil {
		return nil, err
	}
	slog.Debug("CLI parser finished successfully.", "manifest", cfg.ManifestPath, "workers", cfg.WorkerCount)
	return app.NewApp(cmd.Context(), cmd.OutOrStdout(), cfg)
}

// configFrom merges the positional manifest path with flags and environment.
func configFrom(v *viper.Viper, args []string) (*app.Config, error) {
	path := v.GetString("manifest")
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return nil, usageError(errors.New("a manifest path is required: pass MANIFEST_PATH or --manifest"))
	}

	cfg, err := app.NewConfig(app.Config{
		ManifestPath: path,
		OutDir:       v.GetString("out"),
		LogFormat:    v.GetString("log-format"),
		LogLevel:     v.GetString("log-level"),
		WorkerCount:  v.GetInt("workers"),
		Listen:       v.GetString("listen"),
		Trace:        v.GetString("trace"),
		CacheSize:    v.GetInt("cache-size"),
		Debounce:     v.GetDuration("debounce"),
		S3: s3store.Config{
			Endpoint:  v.GetString("s3-endpoint"),
			Region:    v.GetString("s3-region"),
			AccessKey: v.GetString("s3-access-key"),
			SecretKey: v.GetString("s3-secret-key"),
			UseSSL:    v.GetBool("s3-ssl"),
		},
	})
	if err != nil {
		return nil, usageError(fmt.Errorf("invalid configuration: %w", err))
	}
	return cfg, nil
}
