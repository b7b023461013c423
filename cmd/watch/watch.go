package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/xferwatch/internal/app"
	"github.com/tphakala/xferwatch/internal/conf"
	"github.com/tphakala/xferwatch/internal/errors"
	"github.com/tphakala/xferwatch/internal/httpserver"
	"github.com/tphakala/xferwatch/internal/logging"
	"github.com/tphakala/xferwatch/internal/monitor"
	"github.com/tphakala/xferwatch/internal/notification"
)

const stopNoticeTimeout = 10 * time.Second

type flagValues struct {
	destination  string
	process      string
	expectedSize string
	interval     time.Duration
	stall        time.Duration
	serve        bool
}

// Command creates the watch command, which monitors a transfer until it
// completes or the process is interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	var f flagValues

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor a transfer and send notifications",
		Long: `Poll the transfer process and its destination directory, and send
progress, completion and error notifications through every enabled provider.

Examples:
  xferwatch watch --destination /mnt/backup --process rsync --expected-size "120 GB"
  xferwatch watch --destination /mnt/backup --interval 1m --serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlags(cmd, settings, f)
			if settings.Transfer.Destination == "" {
				return fmt.Errorf("a destination is required, set transfer.destination or --destination")
			}
			return run(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&f.destination, "destination", "", "Directory the transfer writes into")
	cmd.Flags().StringVar(&f.process, "process", "", "Name of the transfer process, empty to watch the destination only")
	cmd.Flags().StringVar(&f.expectedSize, "expected-size", "", `Final transfer size, e.g. "120 GB"`)
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "Poll interval")
	cmd.Flags().DurationVar(&f.stall, "stall-timeout", 0, "Raise an error when nothing is written for this long")
	cmd.Flags().BoolVar(&f.serve, "serve", false, "Also run the status server")

	return cmd
}

// applyFlags overrides settings with the flags given on the command line.
func applyFlags(cmd *cobra.Command, settings *conf.Settings, f flagValues) {
	flags := cmd.Flags()
	if flags.Changed("destination") {
		settings.Transfer.Destination = f.destination
	}
	if flags.Changed("process") {
		settings.Transfer.ProcessName = f.process
	}
	if flags.Changed("expected-size") {
		settings.Transfer.ExpectedSize = f.expectedSize
	}
	if flags.Changed("interval") {
		settings.Transfer.PollInterval = f.interval
	}
	if flags.Changed("stall-timeout") {
		settings.Transfer.StallTimeout = f.stall
	}
	if flags.Changed("serve") {
		settings.Server.Enabled = f.serve
	}
}

func run(ctx context.Context, settings *conf.Settings) (err error) {
	log := logging.ForService("watch")

	mcfg, err := monitor.ConfigFromSettings(settings.Transfer)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, settings)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()

	mon := monitor.New(mcfg, a.Dispatcher, monitor.WithMetrics(a.Metrics.Transfer))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if settings.Server.Enabled {
		srv := httpserver.New(settings.Server.Listen, a.Registry, a.Dispatcher,
			httpserver.WithMetrics(a.Metrics),
			httpserver.WithTransfer(mon))
		g.Go(func() error { return srv.Run(gctx) })
	}

	completed := false
	g.Go(func() error {
		defer cancel()
		err := mon.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		completed = err == nil
		return err
	})

	err = g.Wait()
	if !completed {
		// The run context is gone, give the stop notice its own deadline
		stopCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), stopNoticeTimeout)
		defer stop()
		status := mon.Status()
		a.Dispatcher.Notify(stopCtx,
			fmt.Sprintf("Transfer monitor for %s stopped before completion", status.Destination),
			notification.LevelWarning, notification.TypeSystem,
			map[string]any{"destination": status.Destination, "bytes": status.CurrentBytes})
		log.Info("monitor stopped before completion", "destination", status.Destination)
	}
	return err
}
