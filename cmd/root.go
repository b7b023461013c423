// Package cmd builds the xferwatch command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tphakala/xferwatch/cmd/config"
	"github.com/tphakala/xferwatch/cmd/notify"
	"github.com/tphakala/xferwatch/cmd/serve"
	"github.com/tphakala/xferwatch/cmd/watch"
	"github.com/tphakala/xferwatch/internal/buildinfo"
	"github.com/tphakala/xferwatch/internal/conf"
	"github.com/tphakala/xferwatch/internal/logging"
	"github.com/tphakala/xferwatch/internal/telemetry"
)

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	settings := &conf.Settings{}
	var (
		configFile string
		debug      bool
		cleanup    []func()
	)

	rootCmd := &cobra.Command{
		Use:           conf.AppName,
		Short:         "Watch a long running file transfer and notify operators",
		Version:       buildinfo.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: search ., ~/.config/xferwatch, /etc/xferwatch)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	configCmd := config.Command(settings)
	versionCmd := versionCommand()
	rootCmd.AddCommand(
		watch.Command(settings),
		notify.Command(settings),
		serve.Command(settings),
		configCmd,
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Writing a fresh config and printing the version need no settings
		if cmd == versionCmd || cmd.Name() == config.InitCommandName {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		if debug {
			loaded.Debug = true
		}
		*settings = *loaded

		closeLog, err := initLogging(settings)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, closeLog)

		flush, err := telemetry.Init(settings.Sentry, buildinfo.Get().Release())
		if err != nil {
			// Telemetry is optional, keep running without it
			logging.ForService("main").Warn("error telemetry disabled", "error", err)
		} else {
			cleanup = append(cleanup, flush)
		}
		return nil
	}

	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		for _, fn := range slices.Backward(cleanup) {
			fn()
		}
	}

	return rootCmd
}

// initLogging installs the process logger from the main settings. The
// returned function closes the log file, if one was opened.
func initLogging(settings *conf.Settings) (func(), error) {
	level, err := conf.ParseLogLevel(settings.Main.LogLevel)
	if err != nil {
		return nil, err
	}
	if settings.Debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closeLog := func() {}
	if lc := settings.Main.Log; lc.Enabled {
		fw, err := logging.NewRotatingWriter(lc.Path, logging.FileConfig{
			Rotation:  logging.Rotation(lc.Rotation),
			MaxSizeMB: lc.MaxSize,
			Compress:  lc.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, fw)
		closeLog = func() { _ = fw.Close() }
	}

	logging.Init(w, level, settings.Main.JSONLogs)
	return closeLog, nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Get())
			return err
		},
	}
}
