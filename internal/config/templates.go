package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const templateHeader = "# tether node config\n# role: \"host\" accepts handshakes, \"joiner\" connects to node.host\n\n"

// Template renders the defaults for role as TOML.
func Template(role string) (string, error) {
	cfg := Default()
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "", RoleHost:
	case RoleJoiner:
		cfg.Node.ID = "tether-joiner"
		cfg.Node.Role = RoleJoiner
		cfg.Node.Listen = "0.0.0.0:0"
		cfg.Node.Host = "127.0.0.1:9000"
		cfg.Session.MaxSessions = 1
		cfg.Admin.Addr = "127.0.0.1:9091"
	default:
		return "", fmt.Errorf("unknown config role: %s", role)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return templateHeader + string(data), nil
}

func WriteTemplate(path, role string, overwrite bool) error {
	template, err := Template(role)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
