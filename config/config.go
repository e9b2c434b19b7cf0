package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var ErrMissingAPIKey = errors.New("provider.api_key is required (set it in the config file or OPENWEATHER_API_KEY)")

const (
	EnvAPIKey     = "OPENWEATHER_API_KEY"
	EnvLogLevel   = "METEO_LOG_LEVEL"
	EnvListenAddr = "METEO_LISTEN_ADDR"
)

type Config struct {
	Provider ProviderConfig `yaml:"provider" toml:"provider"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
}

type ProviderConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	APIKey  string        `yaml:"api_key" toml:"api_key"`
	Units   string        `yaml:"units" toml:"units"` // only "metric" is accepted
	Lang    string        `yaml:"lang" toml:"lang"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"` // 0 keeps the HTTP client default
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// Load builds the configuration from the embedded defaults, an optional
// file at path (TOML when the extension is .toml, YAML otherwise) and the
// environment, in that order. The result is validated; a missing api key
// yields an error wrapping ErrMissingAPIKey.
func Load(defaults []byte, path string) (*Config, error) {
	cfg := &Config{}

	if err := yaml.Unmarshal(defaults, cfg); err != nil {
		return nil, fmt.Errorf("parse default config: %w", err)
	}

	if path != "" {
		if err := cfg.merge(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) merge(path string) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Provider.APIKey = getEnv(EnvAPIKey, c.Provider.APIKey)
	c.Logging.Level = getEnv(EnvLogLevel, c.Logging.Level)
	c.Server.Addr = getEnv(EnvListenAddr, c.Server.Addr)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		return ErrMissingAPIKey
	}

	base, err := url.Parse(c.Provider.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid provider.base_url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("invalid provider.base_url: %q", c.Provider.BaseURL)
	}

	if c.Provider.Units != "metric" {
		return fmt.Errorf("invalid provider.units: %s (only 'metric' is supported)", c.Provider.Units)
	}
	if c.Provider.Timeout < 0 {
		return fmt.Errorf("invalid provider.timeout: %s", c.Provider.Timeout)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
