package config

import (
	"fmt"
	"net/netip"

	"github.com/danmuck/tether/internal/controller"
	"github.com/danmuck/tether/internal/logging"
	"github.com/danmuck/tether/internal/protocol/registry"
)

// ToController maps a validated file config onto controller settings.
// Validators are left for the caller to install.
func (c NodeConfig) ToController() (controller.Config, error) {
	if err := Validate(c); err != nil {
		return controller.Config{}, err
	}
	out := controller.DefaultConfig()
	out.NodeID = c.Node.ID
	out.ListenAddr = c.Node.Listen
	out.Secret = c.Node.Secret
	out.Role = registry.RoleServerOnly
	if c.Node.Role == RoleJoiner {
		out.Role = registry.RoleClientOnly
	}
	out.MaxSessions = c.Session.MaxSessions
	out.ValidateEndpoint = c.Session.ValidateEndpoint
	out.ValidateID = c.Session.ValidateID

	// Validate already checked every duration.
	out.SessionTimeout, _ = parseDuration(c.Session.Timeout)
	out.KeepAliveInterval, _ = parseDuration(c.Session.KeepAlive)
	if d, _ := parseDuration(c.Reliability.TickInterval); d > 0 {
		out.TickInterval = d
	}
	out.Retry.InitialDelay, _ = parseDuration(c.Reliability.RetryDelay)
	out.Retry.MaxDelay, _ = parseDuration(c.Reliability.MaxDelay)
	out.Retry.Multiplier = c.Reliability.Multiplier
	out.Retry.MaxAttempts = c.Reliability.MaxAttempts
	out.Retry.Jitter = c.Reliability.Jitter
	return out.WithDefaults(), nil
}

// HostAddr parses node.host for joiners.
func (c NodeConfig) HostAddr() (netip.AddrPort, error) {
	if c.Node.Host == "" {
		return netip.AddrPort{}, fmt.Errorf("%w: node.host is required to join", ErrInvalid)
	}
	return netip.ParseAddrPort(c.Node.Host)
}

// LogOptions maps the [log] section onto logging options.
func (c NodeConfig) LogOptions() []func(*logging.Config) {
	opts := []func(*logging.Config){logging.WithLevel(c.Log.Level)}
	if c.Log.File != "" {
		opts = append(opts, logging.WithFile(c.Log.File, logging.Rotation{
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		}))
	}
	return opts
}
