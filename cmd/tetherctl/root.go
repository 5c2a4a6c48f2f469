package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danmuck/tether/internal/config"
	"github.com/danmuck/tether/internal/logging"
)

const defaultConfigPath = "tether.toml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tetherctl",
		Short:         "Run and inspect tether session nodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("log-level")
			if strings.TrimSpace(raw) == "" {
				return nil
			}
			if _, ok := logging.ParseLevel(raw); !ok {
				return fmt.Errorf("invalid --log-level %q", raw)
			}
			return nil
		},
	}
	cmd.PersistentFlags().String("config", defaultConfigPath, "Node config file")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace|debug|info|warn|error (overrides config)")

	cmd.AddCommand(newHostCmd())
	cmd.AddCommand(newJoinCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadNodeConfig reads --config. A missing file at the default path falls
// back to defaults; a missing explicit path is an error.
func loadNodeConfig(cmd *cobra.Command) (config.NodeConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
			return config.Default(), nil
		}
		return config.NodeConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return config.Load(path)
}

func configureLogging(cmd *cobra.Command, cfg config.NodeConfig) {
	opts := cfg.LogOptions()
	if raw, _ := cmd.Flags().GetString("log-level"); strings.TrimSpace(raw) != "" {
		opts = append(opts, logging.WithLevel(raw))
	}
	logging.Configure(logging.ProfileRuntime, opts...)
}
