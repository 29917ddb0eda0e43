package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/najdbe/internal/config"
)

var (
	configPath string
	addrFlag   string
	dbFlag     string
	logFlag    string

	cfg      config.Config
	closeLog func()
)

var rootCmd = &cobra.Command{
	Use:   "najdbe",
	Short: "Campus lost & found catalog",
	Long: `najdbe keeps the lost and found reports of a campus and lets
students claim found items through a small JSON API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if addrFlag != "" {
			cfg.Addr = addrFlag
		}
		if dbFlag != "" {
			cfg.DBPath = dbFlag
		}
		if logFlag != "" {
			cfg.LogPath = logFlag
		}

		closeLog, err = setupLogger(cfg.LogPath)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			closeLog()
		}
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "", "SQLite database path (default najdbe.db)")
	rootCmd.PersistentFlags().StringVarP(&logFlag, "log", "l", "", "also write logs to this file")
}

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{stdout: lr.stdout.WithAttrs(attrs), stderr: lr.stderr.WithAttrs(attrs)}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{stdout: lr.stdout.WithGroup(name), stderr: lr.stderr.WithGroup(name)}
}

// setupLogger installs the default logger. When logPath is set every level
// is also appended to that file; the returned func closes it.
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var cleanup func()
	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	slog.SetDefault(slog.New(&levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}))
	return cleanup, nil
}
