package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/tether/internal/config"
)

const defaultProfilesPath = "tether.profiles.toml"

// profilesFile is a set of named hosts a joiner can connect to.
type profilesFile struct {
	Profiles map[string]profileEntry `toml:"profiles"`
}

type profileEntry struct {
	Host           string `toml:"host"`
	Secret         string `toml:"secret"`
	Listen         string `toml:"listen"`
	KeepAlive      string `toml:"keep_alive"`
	Timeout        string `toml:"timeout"`
	ValidateID     bool   `toml:"validate_id"`
	RetryMaxTries  int    `toml:"retry_max_attempts"`
	RetryDelay     string `toml:"retry_delay"`
	RetryDelayMS   int64  `toml:"retry_delay_ms"`
	AdminAddr      string `toml:"admin_addr"`
	DisableAdminUI bool   `toml:"disable_admin"`
}

// applyProfile overlays only the keys the named profile defines onto cfg.
func applyProfile(path, name string, cfg *config.NodeConfig) error {
	var raw profilesFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	entry, ok := raw.Profiles[name]
	if !ok {
		return fmt.Errorf("profile %q not found in %s", name, path)
	}
	defined := func(key string) bool { return meta.IsDefined("profiles", name, key) }

	if defined("host") {
		cfg.Node.Host = strings.TrimSpace(entry.Host)
	}
	if defined("secret") {
		cfg.Node.Secret = entry.Secret
	}
	if defined("listen") {
		cfg.Node.Listen = strings.TrimSpace(entry.Listen)
	}
	if defined("keep_alive") {
		if _, err := time.ParseDuration(strings.TrimSpace(entry.KeepAlive)); err != nil {
			return fmt.Errorf("parse keep_alive: %w", err)
		}
		cfg.Session.KeepAlive = strings.TrimSpace(entry.KeepAlive)
	}
	if defined("timeout") {
		if _, err := time.ParseDuration(strings.TrimSpace(entry.Timeout)); err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Session.Timeout = strings.TrimSpace(entry.Timeout)
	}
	if defined("validate_id") {
		cfg.Session.ValidateID = entry.ValidateID
	}
	if defined("retry_max_attempts") {
		cfg.Reliability.MaxAttempts = entry.RetryMaxTries
	}
	if defined("retry_delay") {
		if _, err := time.ParseDuration(strings.TrimSpace(entry.RetryDelay)); err != nil {
			return fmt.Errorf("parse retry_delay: %w", err)
		}
		cfg.Reliability.RetryDelay = strings.TrimSpace(entry.RetryDelay)
	}
	if defined("retry_delay_ms") {
		cfg.Reliability.RetryDelay = (time.Duration(entry.RetryDelayMS) * time.Millisecond).String()
	}
	if defined("admin_addr") {
		cfg.Admin.Addr = strings.TrimSpace(entry.AdminAddr)
	}
	if defined("disable_admin") {
		cfg.Admin.Enabled = !entry.DisableAdminUI
	}
	return nil
}
