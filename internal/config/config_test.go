package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labai-app/tracking-agent/internal/config"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()

	require.NoError(t, cfg.Validate(), "defaults must always validate")

	assert.Equal(t, "https://app.labai.io", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, "127.0.0.1:8423", cfg.Bridge.Address)
	assert.Equal(t, 50, cfg.Spool.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Relay.Interval)
	assert.Equal(t, 100, cfg.Tracker.ClickTextLimit)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestNewConfigFromViper_OverridesDefaults(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("api.base_url", "https://staging.labai.io")
	v.Set("relay.interval", "1m")

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "https://staging.labai.io", cfg.API.BaseURL)
	assert.Equal(t, time.Minute, cfg.Relay.Interval)
	// Untouched fields keep their defaults.
	assert.Equal(t, "127.0.0.1:8423", cfg.Bridge.Address)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing base url", func(c *config.Config) { c.API.BaseURL = "" }},
		{"zero request timeout", func(c *config.Config) { c.API.RequestTimeout = 0 }},
		{"missing bridge address", func(c *config.Config) { c.Bridge.Address = "" }},
		{"non-positive batch size", func(c *config.Config) { c.Spool.BatchSize = 0 }},
		{"non-positive relay interval", func(c *config.Config) { c.Relay.Interval = -time.Second }},
		{"non-positive relay rate", func(c *config.Config) { c.Relay.BatchesPerSec = 0 }},
		{"non-positive click text limit", func(c *config.Config) { c.Tracker.ClickTextLimit = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewConfigFromViper_InvalidConfigFails(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("spool.batch_size", 0)

	_, err := config.NewConfigFromViper(v)
	assert.Error(t, err)
}
