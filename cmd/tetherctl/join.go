package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmuck/tether/internal/config"
)

func newJoinCmd() *cobra.Command {
	var chat bool
	var profile string
	var profilesPath string
	cmd := &cobra.Command{
		Use:   "join [host_addr]",
		Short: "Handshake with a host and hold the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadNodeConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Node.Role = config.RoleJoiner
			if cfg.Node.Listen == config.Default().Node.Listen {
				cfg.Node.Listen = "0.0.0.0:0"
			}
			if cfg.Admin.Addr == config.Default().Admin.Addr {
				cfg.Admin.Addr = "127.0.0.1:9091"
			}
			if profile != "" {
				if err := applyProfile(profilesPath, profile, &cfg); err != nil {
					return err
				}
			}
			if len(args) == 1 {
				cfg.Node.Host = args[0]
			}
			if cfg.Node.Host == "" {
				return fmt.Errorf("join needs a host address (argument, node.host or --profile)")
			}
			if err := applyNodeFlags(cmd, &cfg); err != nil {
				return err
			}
			return runNode(cmd, cfg, chat)
		},
	}
	addNodeFlags(cmd)
	cmd.Flags().BoolVar(&chat, "chat", false, "Broadcast stdin lines to the host")
	cmd.Flags().StringVar(&profile, "profile", "", "Named host profile to join")
	cmd.Flags().StringVar(&profilesPath, "profiles", defaultProfilesPath, "Host profiles file")
	return cmd
}
