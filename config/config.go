// Package config loads server settings from a YAML file, falling back to
// defaults when no file is given.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server settings.
type Config struct {
	// Listen is the host:port the HTTP server binds to.
	Listen string `yaml:"listen"`
	// DataDir holds uploaded bots, quarantined sources and the security log.
	DataDir string `yaml:"data_dir"`
	// InitTimeout bounds bot construction, in seconds.
	InitTimeout float64 `yaml:"init_timeout"`
	// MoveTimeout bounds a single bot move, in seconds.
	MoveTimeout float64 `yaml:"move_timeout"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Listen:      ":8080",
		DataDir:     "data",
		InitTimeout: 60,
		MoveTimeout: 2,
		LogLevel:    "info",
	}
}

// Load reads path and overlays it on the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.InitTimeout <= 0 || c.MoveTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// InitTimeoutDuration returns the bot initialization deadline.
func (c Config) InitTimeoutDuration() time.Duration {
	return time.Duration(c.InitTimeout * float64(time.Second))
}

// MoveTimeoutDuration returns the per-move deadline.
func (c Config) MoveTimeoutDuration() time.Duration {
	return time.Duration(c.MoveTimeout * float64(time.Second))
}
