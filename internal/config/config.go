package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, read from a YAML file with env-var
// overrides for the secrets.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type GatewayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type DashboardConfig struct {
	Password string `yaml:"password"`
	// JWTSecret signs session cookies; auto-generated when empty.
	JWTSecret string `yaml:"jwt_secret"`
}

type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// UnmarshalYAML accepts durations in time.ParseDuration form ("10s",
// "5m"). Fields missing from the file keep their current values.
func (m *MonitorConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		PollInterval string `yaml:"poll_interval"`
		Timeout      string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return fmt.Errorf("monitor.poll_interval: %w", err)
		}
		m.PollInterval = d
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("monitor.timeout: %w", err)
		}
		m.Timeout = d
	}
	return nil
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Gateway:  GatewayConfig{URL: "ws://127.0.0.1:18789"},
		HTTP:     HTTPConfig{Addr: "127.0.0.1:8900"},
		Database: DatabaseConfig{Path: "missiond.db"},
		Monitor: MonitorConfig{
			PollInterval: 10 * time.Second,
			Timeout:      5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path (optional) and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("MC_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv("MC_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("MC_DASHBOARD_PASSWORD"); v != "" {
		cfg.Dashboard.Password = v
	}
	if v := os.Getenv("MC_JWT_SECRET"); v != "" {
		cfg.Dashboard.JWTSecret = v
	}
	if v := os.Getenv("MC_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("MC_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.Timeout <= c.Monitor.PollInterval {
		return fmt.Errorf("monitor.timeout must exceed monitor.poll_interval")
	}
	return nil
}
