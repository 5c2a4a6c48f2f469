package controller

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/danmuck/tether/internal/protocol/packets"
	"github.com/danmuck/tether/internal/protocol/registry"
	"github.com/danmuck/tether/internal/protocol/reliability"
)

var ErrInvalidConfig = errors.New("controller: invalid config")

// BeginValidator decides whether a joiner presenting secret may open a session.
type BeginValidator func(secret string, from netip.AddrPort) bool

// AcceptValidator decides whether a host's accept is trusted.
type AcceptValidator func(accept *packets.HandshakeAccept, from netip.AddrPort) bool

// Config drives one controller. Start from DefaultConfig; the zero value
// disables session validation.
type Config struct {
	NodeID     string
	ListenAddr string
	Role       registry.Role

	// MaxSessions caps remote sessions; 0 means unlimited.
	MaxSessions    int
	SessionTimeout time.Duration

	// KeepAliveInterval broadcasts Ping to every session; 0 disables it.
	KeepAliveInterval time.Duration
	// TickInterval drives reliable retransmission.
	TickInterval time.Duration
	Retry        reliability.RetryPolicy

	ValidateEndpoint bool
	ValidateID       bool

	// Secret is echoed in HandshakeAccept.
	Secret          string
	BeginValidator  BeginValidator
	AcceptValidator AcceptValidator
}

func DefaultConfig() Config {
	return Config{
		NodeID:           "tether",
		ListenAddr:       ":0",
		Role:             registry.RoleClientOnly,
		SessionTimeout:   30 * time.Second,
		TickInterval:     50 * time.Millisecond,
		Retry:            reliability.DefaultRetryPolicy(),
		ValidateEndpoint: true,
		ValidateID:       true,
	}
}

// WithDefaults fills zero timing and addressing fields.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.NodeID == "" {
		c.NodeID = def.NodeID
	}
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	c.Retry = c.Retry.WithDefaults()
	return c
}

func (c Config) Validate() error {
	if c.MaxSessions < 0 {
		return fmt.Errorf("%w: max sessions must be >= 0", ErrInvalidConfig)
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("%w: session timeout must be >= 0", ErrInvalidConfig)
	}
	if c.KeepAliveInterval < 0 {
		return fmt.Errorf("%w: keep-alive interval must be >= 0", ErrInvalidConfig)
	}
	switch c.Role {
	case registry.RoleAgnostic, registry.RoleServerOnly, registry.RoleClientOnly:
	default:
		return fmt.Errorf("%w: unknown role %d", ErrInvalidConfig, c.Role)
	}
	return nil
}
