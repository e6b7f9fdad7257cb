package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Disabled bool    `yaml:"disabled" envconfig:"DISABLED"`
	RPS      float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst    int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format     string `yaml:"format" envconfig:"FORMAT"`
	Output     string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath   string `yaml:"file_path" envconfig:"FILE_PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"MAX_SIZE_MB" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" envconfig:"MAX_BACKUPS" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" envconfig:"MAX_AGE_DAYS" validate:"gte=0"`
	Compress   bool   `yaml:"compress" envconfig:"COMPRESS"`
}

// PipelineConfig controls how a run is processed
type PipelineConfig struct {
	InputEncoding     string        `yaml:"input_encoding" envconfig:"INPUT_ENCODING" validate:"oneof=utf_8 shift_jis"`
	OutputEncoding    string        `yaml:"output_encoding" envconfig:"OUTPUT_ENCODING" validate:"oneof=utf_8 shift_jis"`
	OutputDir         string        `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	WriteLFHFComputed bool          `yaml:"write_lfhf_computed" envconfig:"WRITE_LFHF_COMPUTED"`
	HeaderPolicy      string        `yaml:"header_policy" envconfig:"HEADER_POLICY" validate:"oneof=strict lenient"`
	SequencePolicy    string        `yaml:"sequence_policy" envconfig:"SEQUENCE_POLICY" validate:"oneof=strict tolerant"`
	CategoriesFile    string        `yaml:"categories_file" envconfig:"CATEGORIES_FILE"`
	StageTimeout      time.Duration `yaml:"stage_timeout" envconfig:"STAGE_TIMEOUT" validate:"gt=0"`
	BatchConcurrency  int           `yaml:"batch_concurrency" envconfig:"BATCH_CONCURRENCY" validate:"min=1,max=64"`
	SkipSummary       bool          `yaml:"skip_summary" envconfig:"SKIP_SUMMARY"`
	SkipWorkbook      bool          `yaml:"skip_workbook" envconfig:"SKIP_WORKBOOK"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" validate:"gte=0"`
	WriteBufferSize int `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" validate:"gte=0"`
}

// TelemetryConfig selects the OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=none stdout"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=none prometheus"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// Load loads configuration from the config file (if any) and environment variables.
// Precedence: environment, then file, then defaults.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file path. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	var cfg Config

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := loadFromFile(configFile, &cfg); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		} else if os.Getenv(EnvConfigFile) != "" {
			return nil, fmt.Errorf("config file %s: %w", configFile, err)
		}
	}

	// No default tags on the structs, so unset variables leave file values alone.
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDefaults fills every zero value with its default
func (c *Config) applyDefaults() {
	d := Default()

	setString(&c.Logging.Level, d.Logging.Level)
	setString(&c.Logging.Format, d.Logging.Format)
	setString(&c.Logging.Output, d.Logging.Output)
	setString(&c.Logging.FilePath, d.Logging.FilePath)
	setInt(&c.Logging.MaxSizeMB, d.Logging.MaxSizeMB)
	setInt(&c.Logging.MaxBackups, d.Logging.MaxBackups)
	setInt(&c.Logging.MaxAgeDays, d.Logging.MaxAgeDays)

	setInt(&c.Server.Port, d.Server.Port)
	setDuration(&c.Server.ReadTimeout, d.Server.ReadTimeout)
	setDuration(&c.Server.WriteTimeout, d.Server.WriteTimeout)
	setDuration(&c.Server.IdleTimeout, d.Server.IdleTimeout)
	setDuration(&c.Server.ShutdownTimeout, d.Server.ShutdownTimeout)

	if c.Security.RateLimit.RPS == 0 {
		c.Security.RateLimit.RPS = d.Security.RateLimit.RPS
	}
	setInt(&c.Security.RateLimit.Burst, d.Security.RateLimit.Burst)

	setString(&c.Pipeline.InputEncoding, d.Pipeline.InputEncoding)
	setString(&c.Pipeline.OutputEncoding, d.Pipeline.OutputEncoding)
	setString(&c.Pipeline.OutputDir, d.Pipeline.OutputDir)
	setString(&c.Pipeline.HeaderPolicy, d.Pipeline.HeaderPolicy)
	setString(&c.Pipeline.SequencePolicy, d.Pipeline.SequencePolicy)
	setDuration(&c.Pipeline.StageTimeout, d.Pipeline.StageTimeout)
	setInt(&c.Pipeline.BatchConcurrency, d.Pipeline.BatchConcurrency)

	setInt(&c.WebSocket.ReadBufferSize, d.WebSocket.ReadBufferSize)
	setInt(&c.WebSocket.WriteBufferSize, d.WebSocket.WriteBufferSize)

	setString(&c.Telemetry.ServiceName, d.Telemetry.ServiceName)
	setString(&c.Telemetry.Environment, d.Telemetry.Environment)
	setString(&c.Telemetry.TraceExporter, d.Telemetry.TraceExporter)
	setString(&c.Telemetry.MetricExporter, d.Telemetry.MetricExporter)
	if c.Telemetry.SampleRatio == 0 {
		c.Telemetry.SampleRatio = d.Telemetry.SampleRatio
	}
}

// Validate checks the struct tags on every section
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(EnvConfigFile); path != "" {
		return path
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RPS:   DefaultRateLimit,
				Burst: DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "console",
			FilePath:   DefaultLogFile,
			MaxSizeMB:  MaxLogFileSizeMB,
			MaxBackups: MaxLogBackups,
			MaxAgeDays: MaxLogAgeDays,
		},
		Pipeline: PipelineConfig{
			InputEncoding:    EncodingShiftJIS,
			OutputEncoding:   EncodingShiftJIS,
			OutputDir:        DefaultOutputDir,
			HeaderPolicy:     PolicyStrict,
			SequencePolicy:   PolicyStrict,
			StageTimeout:     DefaultStageTimeout,
			BatchConcurrency: DefaultBatchConcurrency,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "none",
			SampleRatio:    1.0,
		},
	}
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
