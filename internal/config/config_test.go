package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.URL != "ws://127.0.0.1:18789" {
		t.Errorf("gateway url = %q", cfg.Gateway.URL)
	}
	if cfg.Monitor.PollInterval != 10*time.Second {
		t.Errorf("poll interval = %v", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.Timeout != 5*time.Minute {
		t.Errorf("timeout = %v", cfg.Monitor.Timeout)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
gateway:
  url: ws://gateway.internal:9000
  token: file-token
http:
  addr: 0.0.0.0:9900
monitor:
  poll_interval: 5s
  timeout: 2m
logging:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.URL != "ws://gateway.internal:9000" {
		t.Errorf("gateway url = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.Token != "file-token" {
		t.Errorf("token = %q", cfg.Gateway.Token)
	}
	if cfg.Monitor.PollInterval != 5*time.Second {
		t.Errorf("poll interval = %v", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.Timeout != 2*time.Minute {
		t.Errorf("timeout = %v", cfg.Monitor.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	// Unset file fields keep their defaults.
	if cfg.Database.Path != "missiond.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MC_GATEWAY_URL", "ws://env:1234")
	t.Setenv("MC_GATEWAY_TOKEN", "env-token")
	t.Setenv("MC_DASHBOARD_PASSWORD", "env-pass")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.URL != "ws://env:1234" {
		t.Errorf("gateway url = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.Token != "env-token" {
		t.Errorf("token = %q", cfg.Gateway.Token)
	}
	if cfg.Dashboard.Password != "env-pass" {
		t.Errorf("password = %q", cfg.Dashboard.Password)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Monitor.Timeout = cfg.Monitor.PollInterval
	if err := cfg.Validate(); err == nil {
		t.Error("timeout <= poll interval should fail validation")
	}

	cfg = Default()
	cfg.Gateway.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty gateway url should fail validation")
	}
}
