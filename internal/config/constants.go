package config

import (
	"time"

	"etaanalyzer/pkg/contracts"
)

// Application constants
const (
	AppName    = "eta-analyzer"
	AppVersion = contracts.Version

	// EnvPrefix namespaces every environment variable (ETA_PIPELINE_OUTPUT_DIR, ...)
	EnvPrefix = "ETA"
	// EnvConfigFile names an explicit YAML config file
	EnvConfigFile     = "ETA_CONFIG"
	DefaultConfigFile = "eta.yaml"

	DefaultPort      = 8080
	DefaultRateLimit = 20 // requests per second
	DefaultBurstSize = 10

	DefaultLogFile   = "logs/eta-analyzer.log"
	MaxLogFileSizeMB = 10
	MaxLogBackups    = 3
	MaxLogAgeDays    = 7

	DefaultOutputDir        = "csvout"
	DefaultStageTimeout     = 30 * time.Minute
	DefaultBatchConcurrency = 4

	// RunIDLayout formats the default run identifier (YYYYMMDDhhmmss)
	RunIDLayout = "20060102150405"
)

// Encodings accepted for input and output CSV files
const (
	EncodingUTF8     = "utf_8"
	EncodingShiftJIS = "shift_jis"
)

// Header and sequence policies
const (
	PolicyStrict   = "strict"
	PolicyLenient  = "lenient"
	PolicyTolerant = "tolerant"
)
