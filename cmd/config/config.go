package config

import (
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/xferwatch/internal/conf"
)

// InitCommandName is the config subcommand that runs without loaded settings.
const InitCommandName = "init"

const redacted = "[REDACTED]"

// secretKeyMarkers select provider options hidden by config show.
var secretKeyMarkers = []string{"token", "secret", "password", "url", "dsn", "key"}

// Command creates the config command with its show and init subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(showCommand(settings), initCommand())
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, the config file and environment overrides are applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *settings
			if !showSecrets {
				s = redactSecrets(s)
			}
			data, err := conf.MarshalYAML(&s)
			if err != nil {
				return err
			}
			if s.ConfigFile != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", s.ConfigFile)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print tokens, webhook URLs and passwords in clear text")
	return cmd
}

func initCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   InitCommandName + " [path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				p, err := conf.DefaultConfigFile()
				if err != nil {
					return err
				}
				path = p
			}
			if err := conf.WriteDefaultConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

// redactSecrets returns a copy of s with credentials masked. The provider
// maps are copied so the live settings stay untouched.
func redactSecrets(s conf.Settings) conf.Settings {
	if s.Sentry.DSN != "" {
		s.Sentry.DSN = redacted
	}
	providers := make(map[string]map[string]any, len(s.Notification.Providers))
	for id, cfg := range s.Notification.Providers {
		providers[id] = redactMap(cfg)
	}
	s.Notification.Providers = providers
	return s
}

func redactMap(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for k, v := range out {
		switch val := v.(type) {
		case map[string]any:
			out[k] = redactMap(val)
		case string:
			if val != "" && isSecretKey(k) {
				out[k] = redacted
			}
		}
	}
	return out
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range secretKeyMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}
