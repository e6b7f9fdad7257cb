package operations

import (
	"time"
)

// Config represents the run execution configuration
type Config struct {
	// Step-specific timeouts
	StageTimeouts map[string]time.Duration `json:"stage_timeouts"`

	// Applies to steps without an entry in StageTimeouts
	DefaultTimeout time.Duration `json:"default_timeout"`

	RetryConfig RetryConfig `json:"retry_config"`

	// Whether to write <id>_manifest.json at the end of every run
	WriteManifest bool `json:"write_manifest"`
}

// NewConfig returns the default execution configuration
func NewConfig() *Config {
	return &Config{
		StageTimeouts:  make(map[string]time.Duration),
		DefaultTimeout: DefaultStageTimeout,
		RetryConfig:    NewRetryConfig(),
		WriteManifest:  true,
	}
}

// GetStageTimeout returns the timeout for a specific Step
func (c *Config) GetStageTimeout(stepID string) time.Duration {
	if timeout, ok := c.StageTimeouts[stepID]; ok && timeout > 0 {
		return timeout
	}
	if c.DefaultTimeout > 0 {
		return c.DefaultTimeout
	}
	return DefaultStageTimeout
}

// SetStageTimeout sets the timeout for a specific Step
func (c *Config) SetStageTimeout(stepID string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stepID] = timeout
}

// ConfigBuilder provides a fluent interface for building execution configurations
type ConfigBuilder struct {
	config *Config
}

// NewConfigBuilder creates a new configuration builder
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: NewConfig(),
	}
}

// WithDefaultTimeout sets the timeout of every step without its own entry
func (b *ConfigBuilder) WithDefaultTimeout(timeout time.Duration) *ConfigBuilder {
	b.config.DefaultTimeout = timeout
	return b
}

// WithStageTimeout sets the timeout for a Step
func (b *ConfigBuilder) WithStageTimeout(stepID string, timeout time.Duration) *ConfigBuilder {
	b.config.SetStageTimeout(stepID, timeout)
	return b
}

// WithRetryConfig sets the retry configuration
func (b *ConfigBuilder) WithRetryConfig(config RetryConfig) *ConfigBuilder {
	b.config.RetryConfig = config
	return b
}

// WithManifest toggles the run manifest
func (b *ConfigBuilder) WithManifest(enabled bool) *ConfigBuilder {
	b.config.WriteManifest = enabled
	return b
}

// Build returns the built configuration
func (b *ConfigBuilder) Build() *Config {
	return b.config
}
