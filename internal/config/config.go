package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config models offsider.yaml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Data struct {
		Dir string `yaml:"dir"`
	} `yaml:"data"`
	Auth struct {
		SessionSecret string `yaml:"session_secret"`
		RigsFile      string `yaml:"rigs_file"`
	} `yaml:"auth"`
	Scheduler struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"scheduler"`
}

// DefaultPath is where the CLI looks for the config file.
const DefaultPath = "offsider.yaml"

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8000"
	cfg.Server.BasePath = "/api/v0"
	cfg.Data.Dir = "data"
	cfg.Auth.RigsFile = "rigs.yaml"
	cfg.Scheduler.IntervalSeconds = 60
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("config.data.dir is required")
	}
	if c.Auth.RigsFile == "" {
		return fmt.Errorf("config.auth.rigs_file is required")
	}
	if c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("config.scheduler.interval_seconds must be positive")
	}
	return nil
}

// Load reads config from path, falling back to defaults when the file does
// not exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Omitted fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML for `offsider config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8000
  base_path: /api/v0

data:
  dir: data

auth:
  # HS256 secret for the session cookie; also settable via OFFSIDER_SESSION_SECRET.
  session_secret: ""
  rigs_file: rigs.yaml

scheduler:
  interval_seconds: 60
`
