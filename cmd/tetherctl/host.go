package main

import (
	"github.com/spf13/cobra"

	"github.com/danmuck/tether/internal/config"
)

func newHostCmd() *cobra.Command {
	var chat bool
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Accept handshakes and hold sessions for joiners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadNodeConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Node.Role = config.RoleHost
			if err := applyNodeFlags(cmd, &cfg); err != nil {
				return err
			}
			return runNode(cmd, cfg, chat)
		},
	}
	addNodeFlags(cmd)
	cmd.Flags().Int("max-sessions", 0, "Maximum remote sessions (0 keeps config)")
	cmd.Flags().BoolVar(&chat, "chat", false, "Broadcast stdin lines to every session")
	return cmd
}

func addNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("id", "", "Node id")
	cmd.Flags().String("listen", "", "UDP listen address")
	cmd.Flags().String("secret", "", "Handshake secret")
	cmd.Flags().String("admin-addr", "", "Admin HTTP listen address")
	cmd.Flags().Bool("no-admin", false, "Disable the admin HTTP listener")
}

// applyNodeFlags overlays explicitly set flags onto cfg and revalidates.
func applyNodeFlags(cmd *cobra.Command, cfg *config.NodeConfig) error {
	flags := cmd.Flags()
	if flags.Changed("id") {
		cfg.Node.ID, _ = flags.GetString("id")
	}
	if flags.Changed("listen") {
		cfg.Node.Listen, _ = flags.GetString("listen")
	}
	if flags.Changed("secret") {
		cfg.Node.Secret, _ = flags.GetString("secret")
	}
	if flags.Changed("admin-addr") {
		cfg.Admin.Addr, _ = flags.GetString("admin-addr")
	}
	if off, _ := flags.GetBool("no-admin"); off {
		cfg.Admin.Enabled = false
	}
	if flags.Lookup("max-sessions") != nil && flags.Changed("max-sessions") {
		cfg.Session.MaxSessions, _ = flags.GetInt("max-sessions")
	}
	return config.Validate(*cfg)
}
