// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire agent configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Bridge  BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	Spool   SpoolConfig   `mapstructure:"spool" yaml:"spool"`
	Relay   RelayConfig   `mapstructure:"relay" yaml:"relay"`
	Tracker TrackerConfig `mapstructure:"tracker" yaml:"tracker"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// APIConfig points the agent at the remote LabAI API.
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// BridgeConfig configures the loopback HTTP bridge the extension talks to.
type BridgeConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SpoolConfig configures the local durable event buffer.
type SpoolConfig struct {
	Path      string `mapstructure:"path" yaml:"path"`
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// RelayConfig paces delivery of spooled events to the ingestion endpoint.
type RelayConfig struct {
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	BatchesPerSec float64       `mapstructure:"batches_per_sec" yaml:"batches_per_sec"`
	Burst         int           `mapstructure:"burst" yaml:"burst"`
}

// TrackerConfig tunes event normalization.
type TrackerConfig struct {
	// ClickTextLimit caps how much element text a click event may carry.
	ClickTextLimit int `mapstructure:"click_text_limit" yaml:"click_text_limit"`
	// MaxSessionEvents bounds the in-memory session log.
	MaxSessionEvents int `mapstructure:"max_session_events" yaml:"max_session_events"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "labai-agent")
	v.SetDefault("logger.log_file", "labai-agent.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- API --
	v.SetDefault("api.base_url", "https://app.labai.io")
	v.SetDefault("api.request_timeout", "30s")
	v.SetDefault("api.ignore_tls_errors", false)

	// -- Bridge --
	v.SetDefault("bridge.address", "127.0.0.1:8423")
	v.SetDefault("bridge.read_timeout", "5s")
	v.SetDefault("bridge.write_timeout", "10s")
	v.SetDefault("bridge.shutdown_timeout", "30s")

	// -- Spool --
	v.SetDefault("spool.path", "") // empty resolves to the platform data dir
	v.SetDefault("spool.batch_size", 50)

	// -- Relay --
	v.SetDefault("relay.interval", "10s")
	v.SetDefault("relay.batches_per_sec", 2.0)
	v.SetDefault("relay.burst", 4)

	// -- Tracker --
	v.SetDefault("tracker.click_text_limit", 100)
	v.SetDefault("tracker.max_session_events", 5000)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is a required configuration field")
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be a positive duration")
	}
	if c.Bridge.Address == "" {
		return fmt.Errorf("bridge.address is a required configuration field")
	}
	if c.Spool.BatchSize <= 0 {
		return fmt.Errorf("spool.batch_size must be a positive integer")
	}
	if c.Relay.Interval <= 0 {
		return fmt.Errorf("relay.interval must be a positive duration")
	}
	if c.Relay.BatchesPerSec <= 0 {
		return fmt.Errorf("relay.batches_per_sec must be positive")
	}
	if c.Tracker.ClickTextLimit <= 0 {
		return fmt.Errorf("tracker.click_text_limit must be a positive integer")
	}
	return nil
}
