package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/tether/internal/protocol/registry"
	"github.com/danmuck/tether/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tether.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	testlog.Start(t)

	path := writeFile(t, `
[node]
id = "edge-1"
role = "Joiner"
host = "10.0.0.1:9000"

[session]
timeout = "10s"
validate_id = false

[reliability]
max_attempts = 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.ID != "edge-1" || cfg.Node.Role != RoleJoiner {
		t.Fatalf("node section: %+v", cfg.Node)
	}
	if cfg.Node.Listen != Default().Node.Listen || cfg.Session.MaxSessions != 16 {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
	if !cfg.Session.ValidateEndpoint || cfg.Session.ValidateID {
		t.Fatalf("validation flags: %+v", cfg.Session)
	}

	ctrl, err := cfg.ToController()
	if err != nil {
		t.Fatalf("to controller: %v", err)
	}
	if ctrl.Role != registry.RoleClientOnly || ctrl.SessionTimeout != 10*time.Second {
		t.Fatalf("controller config: %+v", ctrl)
	}
	if ctrl.Retry.MaxAttempts != 5 || ctrl.Retry.InitialDelay != 200*time.Millisecond {
		t.Fatalf("retry policy: %+v", ctrl.Retry)
	}
	if ctrl.KeepAliveInterval != 5*time.Second || ctrl.TickInterval != 50*time.Millisecond {
		t.Fatalf("timers: keepalive=%v tick=%v", ctrl.KeepAliveInterval, ctrl.TickInterval)
	}
	host, err := cfg.HostAddr()
	if err != nil || host.String() != "10.0.0.1:9000" {
		t.Fatalf("host addr=%v err=%v", host, err)
	}
	if len(cfg.LogOptions()) != 1 {
		t.Fatalf("log options without file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	testlog.Start(t)

	cases := map[string]func(*NodeConfig){
		"role":         func(c *NodeConfig) { c.Node.Role = "peer" },
		"id":           func(c *NodeConfig) { c.Node.ID = " " },
		"listen":       func(c *NodeConfig) { c.Node.Listen = "" },
		"host":         func(c *NodeConfig) { c.Node.Host = "nowhere" },
		"max sessions": func(c *NodeConfig) { c.Session.MaxSessions = -1 },
		"timeout":      func(c *NodeConfig) { c.Session.Timeout = "soon" },
		"negative":     func(c *NodeConfig) { c.Reliability.RetryDelay = "-1s" },
		"multiplier":   func(c *NodeConfig) { c.Reliability.Multiplier = 0.5 },
		"admin":        func(c *NodeConfig) { c.Admin.Addr = "" },
		"allow from":   func(c *NodeConfig) { c.Node.AllowFrom = []string{"lan"} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := Validate(cfg); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: err=%v want ErrInvalid", name, err)
		}
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestWriteTemplateRoundTrip(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	for _, role := range []string{RoleHost, RoleJoiner} {
		path := filepath.Join(dir, role+".toml")
		if err := WriteTemplate(path, role, false); err != nil {
			t.Fatalf("write %s: %v", role, err)
		}
		if err := WriteTemplate(path, role, false); err == nil {
			t.Fatalf("second write without overwrite must fail")
		}
		if err := WriteTemplate(path, role, true); err != nil {
			t.Fatalf("overwrite %s: %v", role, err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load %s template: %v", role, err)
		}
		if cfg.Node.Role != role {
			t.Fatalf("template role=%q want %q", cfg.Node.Role, role)
		}
	}
	if _, err := Template("observer"); err == nil {
		t.Fatalf("unknown role must fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("missing file must fail")
	}
}
