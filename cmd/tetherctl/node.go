package main

import (
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/tether/internal/admin"
	"github.com/danmuck/tether/internal/auth"
	"github.com/danmuck/tether/internal/config"
	"github.com/danmuck/tether/internal/controller"
	"github.com/danmuck/tether/internal/observability"
	"github.com/danmuck/tether/internal/protocol/packets"
	"github.com/danmuck/tether/internal/protocol/registry"
)

// buildControllerConfig installs secret and allow-list checks on top of the
// file settings.
func buildControllerConfig(cfg config.NodeConfig) (controller.Config, error) {
	out, err := cfg.ToController()
	if err != nil {
		return controller.Config{}, err
	}
	var checks []auth.Validator
	if cfg.Node.Secret != "" {
		checks = append(checks, auth.SharedSecret{Secret: cfg.Node.Secret})
	}
	if len(cfg.Node.AllowFrom) > 0 {
		list, err := auth.ParseAllowList(cfg.Node.AllowFrom)
		if err != nil {
			return controller.Config{}, err
		}
		checks = append(checks, list)
	}
	if len(checks) == 0 {
		return out, nil
	}
	check := auth.Predicate(auth.All(checks...))
	if out.Role == registry.RoleServerOnly {
		out.BeginValidator = check
	} else {
		out.AcceptValidator = func(a *packets.HandshakeAccept, from netip.AddrPort) bool {
			return check(a.Secret, from)
		}
	}
	return out, nil
}

func runNode(cmd *cobra.Command, cfg config.NodeConfig, chat bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configureLogging(cmd, cfg)
	ctrlCfg, err := buildControllerConfig(cfg)
	if err != nil {
		return err
	}

	reg := registry.New()
	if err := registerChat(reg, cmd.OutOrStdout()); err != nil {
		return err
	}
	ctrl, err := controller.New(ctrlCfg, reg)
	if err != nil {
		return err
	}
	defer ctrl.Close()
	if err := relayChat(reg, ctrl); err != nil {
		return err
	}

	cancelMetrics := observability.Observe(ctrl)
	defer cancelMetrics()
	cancelLog := ctrl.Subscribe(logSessionEvent)
	defer cancelLog()

	if cfg.Admin.Enabled {
		srv := admin.New(ctrl, admin.Options{Addr: cfg.Admin.Addr, CORSOrigins: cfg.Admin.CORSOrigins})
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Error().Err(err).Msg("admin server stopped")
			}
		}()
	}

	if cfg.Node.Role == config.RoleJoiner {
		host, err := cfg.HostAddr()
		if err != nil {
			return err
		}
		if err := ctrl.Connect(host, cfg.Node.Secret); err != nil {
			return err
		}
	}
	if chat {
		go pumpLines(ctx, cmd.InOrStdin(), cfg.Node.ID, ctrl)
	}

	<-ctx.Done()
	log.Info().Str("node", cfg.Node.ID).Msg("shutting down")
	return nil
}

func logSessionEvent(ev controller.Event) {
	switch ev.Kind {
	case controller.SessionStarted, controller.SessionEnded, controller.SessionRejected,
		controller.Connected, controller.Disconnected:
		log.Info().
			Str("event", ev.Kind.String()).
			Str("remote", ev.Remote.String()).
			Str("reason", ev.Reason).
			Msg("session event")
	}
}
