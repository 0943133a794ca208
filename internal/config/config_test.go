// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "glimpse-cli", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1024, cfg.Browser.Width)
	assert.Equal(t, 768, cfg.Browser.Height)
	assert.Equal(t, 2.0, cfg.Browser.DeviceScaleFactor)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.BaseURL)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.Vision.Timeout)
	assert.Equal(t, 0.5, cfg.Vision.OverlapThreshold)
	require.NotNil(t, cfg.Agent.MaxHistorySize)
	assert.Equal(t, 4, *cfg.Agent.MaxHistorySize)
	assert.Equal(t, 50, cfg.Agent.MaxSteps)
	assert.Equal(t, 5, cfg.Agent.PageTrailSize)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("valid defaults", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("zero step budget", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Agent.MaxSteps = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.max_steps")
	})

	t.Run("non-positive history budget", func(t *testing.T) {
		cfg := NewDefaultConfig()
		zero := 0
		cfg.Agent.MaxHistorySize = &zero
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.max_history_size")
	})

	t.Run("nil history budget is allowed", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Agent.MaxHistorySize = nil
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad overlap threshold", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Vision.OverlapThreshold = 1.5
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overlap_threshold")
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.LLM.Provider = "mystery"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm.provider")
	})

	t.Run("bad vision url", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Vision.BaseURL = "://not-a-url"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vision.base_url")
	})
}

// -- YAML Round Trip --

func TestConfigFromYAML(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
  format: json
browser:
  width: 1280
  height: 800
vision:
  base_url: http://vision.internal:9000
  max_retries: 5
llm:
  provider: gemini
  model: gemini-2.5-flash
agent:
  max_history_size: 8
  max_steps: 20
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 1280, cfg.Browser.Width)
	assert.Equal(t, "http://vision.internal:9000", cfg.Vision.BaseURL)
	assert.Equal(t, 5, cfg.Vision.MaxRetries)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	require.NotNil(t, cfg.Agent.MaxHistorySize)
	assert.Equal(t, 8, *cfg.Agent.MaxHistorySize)
	assert.Equal(t, 20, cfg.Agent.MaxSteps)
	assert.Equal(t, 800, cfg.Browser.Height)
	// Untouched sections keep their defaults.
	assert.Equal(t, 120, cfg.Agent.ElementCap)
}

func TestConfigFromYAMLKeepsDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer([]byte("logger:\n  level: warn\n"))))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, 1024, cfg.Browser.Width)
	assert.Equal(t, 4.0, cfg.Vision.RateLimit)
}
