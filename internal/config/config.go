package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/tether/internal/auth"
)

var ErrInvalid = errors.New("config: invalid")

const (
	RoleHost   = "host"
	RoleJoiner = "joiner"
)

// NodeConfig is the on-disk shape of one tether process.
type NodeConfig struct {
	Node        NodeSection        `toml:"node"`
	Session     SessionSection     `toml:"session"`
	Reliability ReliabilitySection `toml:"reliability"`
	Admin       AdminSection       `toml:"admin"`
	Log         LogSection         `toml:"log"`
}

type NodeSection struct {
	ID     string `toml:"id"`
	Role   string `toml:"role"`
	Listen string `toml:"listen"`
	Secret string `toml:"secret"`
	// Host is the endpoint a joiner connects to.
	Host string `toml:"host,omitempty"`
	// AllowFrom limits which addresses a host accepts handshakes from.
	AllowFrom []string `toml:"allow_from,omitempty"`
}

type SessionSection struct {
	MaxSessions      int    `toml:"max_sessions"`
	Timeout          string `toml:"timeout"`
	KeepAlive        string `toml:"keep_alive"`
	ValidateEndpoint bool   `toml:"validate_endpoint"`
	ValidateID       bool   `toml:"validate_id"`
}

type ReliabilitySection struct {
	TickInterval string  `toml:"tick_interval"`
	RetryDelay   string  `toml:"retry_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay,omitempty"`
	MaxAttempts  int     `toml:"max_attempts"`
	Jitter       bool    `toml:"jitter"`
}

type AdminSection struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

type LogSection struct {
	Level      string `toml:"level"`
	File       string `toml:"file,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

func Default() NodeConfig {
	return NodeConfig{
		Node: NodeSection{
			ID:     "tether",
			Role:   RoleHost,
			Listen: "0.0.0.0:9000",
		},
		Session: SessionSection{
			MaxSessions:      16,
			Timeout:          "30s",
			KeepAlive:        "5s",
			ValidateEndpoint: true,
			ValidateID:       true,
		},
		Reliability: ReliabilitySection{
			TickInterval: "50ms",
			RetryDelay:   "200ms",
			Multiplier:   1.0,
		},
		Admin: AdminSection{
			Enabled:     true,
			Addr:        "127.0.0.1:9090",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Log: LogSection{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load overlays the file at path onto Default and validates the result.
func Load(path string) (NodeConfig, error) {
	cfg := Default()
	if err := loadToml(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	cfg.Node.Role = strings.ToLower(strings.TrimSpace(cfg.Node.Role))
	if err := Validate(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func Validate(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.Node.ID) == "" {
		return fmt.Errorf("%w: node.id is required", ErrInvalid)
	}
	switch cfg.Node.Role {
	case RoleHost, RoleJoiner:
	default:
		return fmt.Errorf("%w: node.role must be %q or %q, got %q", ErrInvalid, RoleHost, RoleJoiner, cfg.Node.Role)
	}
	if strings.TrimSpace(cfg.Node.Listen) == "" {
		return fmt.Errorf("%w: node.listen is required", ErrInvalid)
	}
	if cfg.Node.Host != "" {
		if _, err := netip.ParseAddrPort(cfg.Node.Host); err != nil {
			return fmt.Errorf("%w: node.host: %v", ErrInvalid, err)
		}
	}
	if _, err := auth.ParseAllowList(cfg.Node.AllowFrom); err != nil {
		return fmt.Errorf("%w: node.allow_from: %v", ErrInvalid, err)
	}
	if cfg.Session.MaxSessions < 0 {
		return fmt.Errorf("%w: session.max_sessions must be >= 0", ErrInvalid)
	}
	if cfg.Reliability.MaxAttempts < 0 {
		return fmt.Errorf("%w: reliability.max_attempts must be >= 0", ErrInvalid)
	}
	if cfg.Reliability.Multiplier != 0 && cfg.Reliability.Multiplier < 1.0 {
		return fmt.Errorf("%w: reliability.multiplier must be >= 1", ErrInvalid)
	}
	durations := map[string]string{
		"session.timeout":           cfg.Session.Timeout,
		"session.keep_alive":        cfg.Session.KeepAlive,
		"reliability.tick_interval": cfg.Reliability.TickInterval,
		"reliability.retry_delay":   cfg.Reliability.RetryDelay,
		"reliability.max_delay":     cfg.Reliability.MaxDelay,
	}
	for key, raw := range durations {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
	}
	if cfg.Admin.Enabled && strings.TrimSpace(cfg.Admin.Addr) == "" {
		return fmt.Errorf("%w: admin.addr is required when admin is enabled", ErrInvalid)
	}
	return nil
}

// parseDuration treats an empty value as zero.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
