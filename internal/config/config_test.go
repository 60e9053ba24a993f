// File: internal/config/config_test.go
package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "pngprotect", cfg.Logger.ServiceName)
	assert.Equal(t, 5, cfg.Watermark.DefaultStrength)
	assert.Equal(t, 50, cfg.Shield.DefaultLevel)
	assert.Equal(t, 224, cfg.Extractor.InputSize)
	assert.Equal(t, 16, cfg.Extractor.PatchSize)
	assert.Positive(t, cfg.Engine.WorkerConcurrency)
	assert.Positive(t, cfg.Engine.DefaultTaskTimeout)
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	t.Parallel()

	v := viper.New()
	SetDefaults(v)
	v.Set("engine.worker_concurrency", 8)
	v.Set("watermark.default_strength", 9)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Engine.WorkerConcurrency)
	assert.Equal(t, 9, cfg.Watermark.DefaultStrength)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	mutations := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Engine.WorkerConcurrency = 0 }},
		{"zero queue", func(c *Config) { c.Engine.QueueSize = 0 }},
		{"strength too high", func(c *Config) { c.Watermark.DefaultStrength = 11 }},
		{"strength too low", func(c *Config) { c.Watermark.DefaultStrength = 0 }},
		{"level too high", func(c *Config) { c.Shield.DefaultLevel = 101 }},
		{"level negative", func(c *Config) { c.Shield.DefaultLevel = -1 }},
		{"patch does not divide input", func(c *Config) { c.Extractor.InputSize = 225 }},
		{"one class", func(c *Config) { c.Extractor.NumClasses = 1 }},
	}
	for _, tc := range mutations {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewConfigFromViperRejectsInvalid(t *testing.T) {
	t.Parallel()

	v := viper.New()
	SetDefaults(v)
	v.Set("shield.default_level", 200)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
}
