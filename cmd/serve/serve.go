package serve

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/xferwatch/internal/app"
	"github.com/tphakala/xferwatch/internal/conf"
	"github.com/tphakala/xferwatch/internal/errors"
	"github.com/tphakala/xferwatch/internal/httpserver"
)

// Command creates the serve command, which runs the status server without
// a transfer monitor.
func Command(settings *conf.Settings) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the status server only",
		Long:  "Serve provider status, manual provider reset, test messages and metrics over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if cmd.Flags().Changed("listen") {
				settings.Server.Listen = listen
			}

			a, err := app.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, a.Close())
			}()

			srv := httpserver.New(settings.Server.Listen, a.Registry, a.Dispatcher, httpserver.WithMetrics(a.Metrics))
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, host:port")
	return cmd
}
