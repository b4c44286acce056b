package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the full agent configuration
type Config struct {
	Env         string `yaml:"env" env:"AGENT_ENV" env-default:"local"`
	StoragePath string `yaml:"storage_path" env:"AGENT_STORAGE_PATH" env-default:"context-agent.db"`

	Log struct {
		Level  string `yaml:"level" env:"AGENT_LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"AGENT_LOG_FORMAT" env-default:"console"`
	} `yaml:"log"`

	Permissions struct {
		// RequestTimeout bounds each OS consent flow in seconds; an
		// abandoned dialog surfaces as a timed-out request.
		RequestTimeout int `yaml:"request_timeout" env:"AGENT_PERMISSION_REQUEST_TIMEOUT" env-default:"60"`
	} `yaml:"permissions"`

	Extraction struct {
		// StrategyOrder lists strategy names in fallback order.
		StrategyOrder []string `yaml:"strategy_order" env:"AGENT_STRATEGY_ORDER" env-separator:","`
		// Per-strategy timeouts in milliseconds.
		StructuredTimeout    int `yaml:"structured_timeout" env-default:"800"`
		ScriptedTimeout      int `yaml:"scripted_timeout" env-default:"1500"`
		AccessibilityTimeout int `yaml:"accessibility_timeout" env-default:"1500"`
		OpticalTimeout       int `yaml:"optical_timeout" env-default:"10000"`

		MaxContentLength int      `yaml:"max_content_length" env-default:"100000"`
		BlockedApps      []string `yaml:"blocked_apps" env:"AGENT_BLOCKED_APPS" env-separator:","`
	} `yaml:"extraction"`

	Hotkey struct {
		Enabled bool   `yaml:"enabled" env:"AGENT_HOTKEY_ENABLED" env-default:"true"`
		Combo   string `yaml:"combo" env:"AGENT_HOTKEY_COMBO" env-default:"cmd+shift+ctrl+l"`
	} `yaml:"hotkey"`

	Tracker struct {
		// PollInterval is the focused-window poll cadence in seconds.
		PollInterval int `yaml:"poll_interval" env-default:"2"`
	} `yaml:"tracker"`

	Metrics struct {
		BatchSize     int `yaml:"batch_size" env-default:"20"`
		FlushInterval int `yaml:"flush_interval" env-default:"30"`
	} `yaml:"metrics"`

	Server struct {
		Enabled bool `yaml:"enabled" env:"AGENT_SERVER_ENABLED" env-default:"true"`
		Port    int  `yaml:"port" env:"AGENT_SERVER_PORT" env-default:"8766"`
	} `yaml:"server"`

	Tray struct {
		Enabled bool `yaml:"enabled" env:"AGENT_TRAY_ENABLED" env-default:"true"`
	} `yaml:"tray"`
}

// LoadConfig reads configuration from the YAML file at path with environment
// overrides. A missing file falls back to environment and defaults only.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Permissions.RequestTimeout <= 0 {
		return fmt.Errorf("permissions.request_timeout must be positive")
	}
	if c.Extraction.MaxContentLength <= 0 {
		return fmt.Errorf("extraction.max_content_length must be positive")
	}
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
