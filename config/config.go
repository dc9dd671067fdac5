package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// StoreConfig holds the default location of the read-only SQLite store.
// The path may be overridden per execution request.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend           string `mapstructure:"backend"`
	TimeoutSec        int    `mapstructure:"timeout_sec"`
	GraceSec          int    `mapstructure:"grace_sec"`
	MaxStdoutLen      int    `mapstructure:"max_stdout_len"`
	EnableGojaBackend bool   `mapstructure:"enable_goja_backend"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("store.path", "za.sqlite3")
	viper.SetDefault("sandbox.backend", "process")
	viper.SetDefault("sandbox.timeout_sec", 8)
	viper.SetDefault("sandbox.grace_sec", 1)
	viper.SetDefault("sandbox.max_stdout_len", 10000)
	viper.SetDefault("sandbox.enable_goja_backend", false)
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	// DEXBOX_DB overrides the store path without a config file edit
	if err := viper.BindEnv("store.path", "DEXBOX_DB"); err != nil {
		return nil, fmt.Errorf("error binding environment: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.GraceSec < 0 {
		return fmt.Errorf("sandbox.grace_sec must not be negative, got: %d", c.Sandbox.GraceSec)
	}

	if c.Sandbox.MaxStdoutLen <= 0 {
		return fmt.Errorf("sandbox.max_stdout_len must be positive, got: %d", c.Sandbox.MaxStdoutLen)
	}

	supportedBackends := map[string]bool{
		"process": true,
		"goja":    c.Sandbox.EnableGojaBackend, // in-process, only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// GetGracePeriod returns the post-kill grace period as a duration
func (c *Config) GetGracePeriod() time.Duration {
	return time.Duration(c.Sandbox.GraceSec) * time.Second
}
