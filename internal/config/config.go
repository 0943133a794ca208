// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Vision  VisionConfig  `mapstructure:"vision" yaml:"vision"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
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

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Width             int           `mapstructure:"width" yaml:"width"`
	Height            int           `mapstructure:"height" yaml:"height"`
	DeviceScaleFactor float64       `mapstructure:"device_scale_factor" yaml:"device_scale_factor"`
	DataDir           string        `mapstructure:"data_dir" yaml:"data_dir"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// VisionConfig points the agent at the detection/OCR service.
type VisionConfig struct {
	BaseURL             string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries" yaml:"max_retries"`
	RateLimit           float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	OverlapThreshold    float64       `mapstructure:"overlap_threshold" yaml:"overlap_threshold"`
	ViewportTolerancePx int           `mapstructure:"viewport_tolerance_px" yaml:"viewport_tolerance_px"`
}

// LLMProvider defines the supported reasoning backends.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig defines the configuration for the reasoning model.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// AgentConfig holds settings for the control loop itself.
type AgentConfig struct {
	// MaxHistorySize is the conversation budget in message pairs.
	// nil disables truncation entirely.
	MaxHistorySize  *int          `mapstructure:"max_history_size" yaml:"max_history_size"`
	MaxSteps        int           `mapstructure:"max_steps" yaml:"max_steps"`
	ElementCap      int           `mapstructure:"element_cap" yaml:"element_cap"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	PageTrailSize   int           `mapstructure:"page_trail_size" yaml:"page_trail_size"`
	StartURL        string        `mapstructure:"start_url" yaml:"start_url"`
	ScreenshotDebug string        `mapstructure:"screenshot_debug" yaml:"screenshot_debug"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "glimpse-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.width", 1024)
	v.SetDefault("browser.height", 768)
	v.SetDefault("browser.device_scale_factor", 2.0)
	v.SetDefault("browser.data_dir", ".data/browser")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.post_load_wait", "500ms")

	// -- Vision --
	v.SetDefault("vision.base_url", "http://localhost:8500")
	v.SetDefault("vision.timeout", "30s")
	v.SetDefault("vision.max_retries", 2)
	v.SetDefault("vision.rate_limit", 4.0)
	v.SetDefault("vision.overlap_threshold", 0.5)
	v.SetDefault("vision.viewport_tolerance_px", 8)

	// -- LLM --
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1024)

	// -- Agent --
	v.SetDefault("agent.max_history_size", 4)
	v.SetDefault("agent.max_steps", 50)
	v.SetDefault("agent.element_cap", 120)
	v.SetDefault("agent.max_retries", 2)
	v.SetDefault("agent.retry_backoff", "2s")
	v.SetDefault("agent.page_trail_size", 5)
	v.SetDefault("agent.start_url", "about:blank")
	v.SetDefault("agent.screenshot_debug", "")
}

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("llm.api_key", "GLIMPSE_LLM_API_KEY")

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
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser.width and browser.height must be positive")
	}
	if c.Browser.DeviceScaleFactor <= 0 {
		return fmt.Errorf("browser.device_scale_factor must be positive")
	}
	if _, err := url.ParseRequestURI(c.Vision.BaseURL); err != nil {
		return fmt.Errorf("vision.base_url is not a valid URL: %w", err)
	}
	if c.Vision.OverlapThreshold <= 0 || c.Vision.OverlapThreshold > 1 {
		return fmt.Errorf("vision.overlap_threshold must be in (0, 1]")
	}
	if c.Vision.MaxRetries < 0 {
		return fmt.Errorf("vision.max_retries must not be negative")
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider must be one of: openai, gemini (got %q)", c.LLM.Provider)
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.MaxHistorySize != nil && *c.Agent.MaxHistorySize <= 0 {
		return fmt.Errorf("agent.max_history_size must be positive when set")
	}
	if c.Agent.ElementCap <= 0 {
		return fmt.Errorf("agent.element_cap must be a positive integer")
	}
	if c.Agent.PageTrailSize <= 0 {
		return fmt.Errorf("agent.page_trail_size must be a positive integer")
	}
	return nil
}

// EnvKeyReplacer maps config paths to environment variable names,
// e.g. llm.model -> GLIMPSE_LLM_MODEL.
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}
