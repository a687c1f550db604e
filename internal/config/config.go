package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "MATCHMAKER_"

// Config holds all matchmaker configuration.
// Precedence: Default(), then the YAML file, then MATCHMAKER_* variables.
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Matching MatchingConfig `yaml:"matching" envPrefix:"MATCHING_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Bind string `yaml:"bind" env:"BIND"`
	Port int    `yaml:"port" env:"PORT"`
}

type DatabaseConfig struct {
	Driver  string        `yaml:"driver" env:"DRIVER"` // "sqlite" or "postgres"
	Path    string        `yaml:"path" env:"PATH"`     // sqlite file; empty means store.DefaultDBPath()
	DSN     string        `yaml:"dsn" env:"DSN"`       // postgres connection string
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type MatchingConfig struct {
	MaxResults int     `yaml:"max_results" env:"MAX_RESULTS"`
	Jitter     float64 `yaml:"jitter" env:"JITTER"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Timeout: 5 * time.Second,
		},
		Matching: MatchingConfig{
			MaxResults: 3,
			Jitter:     10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Matching.MaxResults < 1 {
		return fmt.Errorf("matching.max_results must be positive, got %d", c.Matching.MaxResults)
	}
	if c.Matching.Jitter < 0 {
		return fmt.Errorf("matching.jitter must not be negative, got %v", c.Matching.Jitter)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
