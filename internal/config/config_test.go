package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "portalkeeper", cfg.Logger.ServiceName)

	assert.Equal(t, 4*time.Hour, cfg.Session.Duration)
	assert.Equal(t, 3, cfg.Session.MaxRetries)
	assert.Equal(t, 5, cfg.Session.LoginBatchSize)
	assert.Equal(t, 5*time.Second, cfg.Session.RetryDelayMin)
	assert.Equal(t, 10*time.Second, cfg.Session.RetryDelayMax)

	assert.Equal(t, 5*time.Minute, cfg.Health.Interval)
	assert.Equal(t, 30*time.Second, cfg.Health.CheckTimeout)
	assert.Equal(t, 3, cfg.Health.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Health.BatchPause)
	assert.Equal(t, 30*time.Second, cfg.Health.RecoveryDelay)

	assert.Equal(t, 1000, cfg.Events.BufferSize)

	assert.NotEmpty(t, cfg.Portal.LoginURL)
	assert.NotEmpty(t, cfg.Classroom.LoginURL)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadHonorsOverrides(t *testing.T) {
	v := viper.New()
	v.Set("session.max_retries", 7)
	v.Set("health.interval", "1m")
	v.Set("logger.level", "debug")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Session.MaxRetries)
	assert.Equal(t, time.Minute, cfg.Health.Interval)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(viper.New())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retries", func(c *Config) { c.Session.MaxRetries = 0 }},
		{"zero login batch", func(c *Config) { c.Session.LoginBatchSize = 0 }},
		{"zero health batch", func(c *Config) { c.Health.BatchSize = 0 }},
		{"non-positive session duration", func(c *Config) { c.Session.Duration = 0 }},
		{"non-positive health interval", func(c *Config) { c.Health.Interval = -time.Second }},
		{"inverted retry delays", func(c *Config) {
			c.Session.RetryDelayMin = 10 * time.Second
			c.Session.RetryDelayMax = time.Second
		}},
		{"zero event buffer", func(c *Config) { c.Events.BufferSize = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
