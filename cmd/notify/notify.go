package notify

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/xferwatch/internal/app"
	"github.com/tphakala/xferwatch/internal/conf"
	"github.com/tphakala/xferwatch/internal/errors"
	"github.com/tphakala/xferwatch/internal/notification"
)

// Command returns a cobra command that sends one message through every
// enabled provider.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		typ      string
		level    string
		priority string
		extra    []string
	)

	cmd := &cobra.Command{
		Use:   "notify [text]",
		Short: "Send a test notification through all enabled providers",
		Long: `Send one message through every enabled provider and print the outcome.

Examples:
  # Basic notification
  xferwatch notify "Backup window starts in 10 minutes"

  # Error with metadata
  xferwatch notify --type=error --level=error --extra="host=nas01" --extra="exit_code=23" "rsync failed"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ntype := notification.Type(strings.ToUpper(typ))
			if !ntype.Valid() {
				return fmt.Errorf("invalid type: %s", typ)
			}
			nlevel := notification.Level(strings.ToUpper(level))
			if !nlevel.Valid() {
				return fmt.Errorf("invalid level: %s", level)
			}

			metadata, err := parseExtra(extra)
			if err != nil {
				return err
			}
			if priority != "" {
				p := notification.Priority(strings.ToUpper(priority))
				if !p.Valid() {
					return fmt.Errorf("invalid priority: %s", priority)
				}
				metadata["priority"] = string(p)
			}

			a, err := app.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, a.Close())
			}()

			results := a.Dispatcher.Notify(cmd.Context(), strings.Join(args, " "), nlevel, ntype, metadata)
			if len(results) == 0 {
				return fmt.Errorf("no enabled providers")
			}

			out := cmd.OutOrStdout()
			for _, name := range slices.Sorted(maps.Keys(results)) {
				outcome := "delivered"
				if !results[name] {
					outcome = "failed"
				}
				fmt.Fprintf(out, "%-12s %s\n", name, outcome)
			}
			if !notification.Succeeded(results) {
				return fmt.Errorf("no provider accepted the message")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", string(notification.TypeCustom), "Message type: progress|completion|error|warning|system|debug|batch|interactive|custom")
	cmd.Flags().StringVar(&level, "level", string(notification.LevelInfo), "Message level: debug|info|warning|error|critical")
	cmd.Flags().StringVar(&priority, "priority", "", "Override the priority derived from the level: low|normal|high")
	cmd.Flags().StringSliceVar(&extra, "extra", nil, "Metadata key-value pairs in format key=value (supports numbers, booleans, and strings)")

	return cmd
}

// parseExtra turns key=value pairs into metadata. Values are parsed as
// numbers, then booleans, and kept as strings otherwise.
func parseExtra(pairs []string) (map[string]any, error) {
	metadata := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid metadata format: %s (expected key=value)", kv)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return nil, fmt.Errorf("invalid metadata format: %s (empty key)", kv)
		}

		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			metadata[key] = floatVal
		} else if boolVal, err := strconv.ParseBool(value); err == nil {
			metadata[key] = boolVal
		} else {
			metadata[key] = value
		}
	}
	return metadata, nil
}
