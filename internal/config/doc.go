// Package config provides centralized configuration management for the
// ETA analyzer. It loads configuration from multiple sources, validates it,
// and exposes a typed Config used by the CLI and the web service.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file (eta.yaml, or the path in ETA_CONFIG)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern ETA_<SECTION>_<FIELD>:
//
//	ETA_SERVER_PORT=8080
//	ETA_LOGGING_LEVEL=debug
//	ETA_PIPELINE_INPUT_ENCODING=utf_8
//	ETA_PIPELINE_SEQUENCE_POLICY=tolerant
//	ETA_TELEMETRY_METRIC_EXPORTER=prometheus
//
// # Validation
//
// Every section is validated with struct tags after defaults are applied, so
// an unknown encoding or policy name fails at load time rather than mid-run.
package config
