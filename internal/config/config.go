package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/emberfx/emberlink/internal/engine"
	"github.com/emberfx/emberlink/internal/logger"
)

// Config is the daemon's top-level TOML configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Log     LogConfig     `mapstructure:"log"`
}

// EngineConfig describes the engine process to supervise.
type EngineConfig struct {
	Name              string               `mapstructure:"name"`
	Command           string               `mapstructure:"command"`
	Args              []string             `mapstructure:"args"`
	WorkDir           string               `mapstructure:"work_dir"`
	Env               []string             `mapstructure:"env"`
	StartTimeout      time.Duration        `mapstructure:"start_timeout"`
	RequestTimeout    time.Duration        `mapstructure:"request_timeout"`
	StopGrace         time.Duration        `mapstructure:"stop_grace"`
	HeartbeatInterval time.Duration        `mapstructure:"heartbeat_interval"`
	Capture           logger.CaptureConfig `mapstructure:"capture"`
}

// ServerConfig is the control API listener.
type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// MetricsConfig is the Prometheus listener; empty listen disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// PathsConfig locates the data files the daemon owns.
type PathsConfig struct {
	Settings string `mapstructure:"settings"`
	Presets  string `mapstructure:"presets"`
}

// LogConfig controls daemon logging.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Load reads the TOML config at path, applying defaults for absent fields.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("engine.name", "engine")
	v.SetDefault("server.listen", "127.0.0.1:7817")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("paths.settings", "settings.toml")
	v.SetDefault("paths.presets", "presets.db")
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Engine.Command == "" {
		return errors.New("engine.command is required")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}

// EngineSpec converts the engine section to the bridge's Spec.
func (c *Config) EngineSpec() engine.Spec {
	return engine.Spec{
		Name:              c.Engine.Name,
		Command:           c.Engine.Command,
		Args:              c.Engine.Args,
		WorkDir:           c.Engine.WorkDir,
		Env:               c.Engine.Env,
		StartTimeout:      c.Engine.StartTimeout,
		RequestTimeout:    c.Engine.RequestTimeout,
		StopGrace:         c.Engine.StopGrace,
		HeartbeatInterval: c.Engine.HeartbeatInterval,
		Capture:           c.Engine.Capture,
	}
}
