package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnvVars = []string{
	"ETA_CONFIG",
	"ETA_SERVER_PORT",
	"ETA_LOGGING_LEVEL",
	"ETA_PIPELINE_INPUT_ENCODING",
	"ETA_PIPELINE_OUTPUT_ENCODING",
	"ETA_PIPELINE_OUTPUT_DIR",
	"ETA_PIPELINE_SEQUENCE_POLICY",
	"ETA_PIPELINE_WRITE_LFHF_COMPUTED",
	"ETA_PIPELINE_BATCH_CONCURRENCY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range testEnvVars {
		if val, ok := os.LookupEnv(name); ok {
			t.Cleanup(func() { os.Setenv(name, val) })
		} else {
			t.Cleanup(func() { os.Unsetenv(name) })
		}
		os.Unsetenv(name)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eta.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with no file and no env",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, EncodingShiftJIS, cfg.Pipeline.InputEncoding)
				assert.Equal(t, EncodingShiftJIS, cfg.Pipeline.OutputEncoding)
				assert.Equal(t, "csvout", cfg.Pipeline.OutputDir)
				assert.Equal(t, PolicyStrict, cfg.Pipeline.HeaderPolicy)
				assert.Equal(t, PolicyStrict, cfg.Pipeline.SequencePolicy)
				assert.False(t, cfg.Pipeline.WriteLFHFComputed)
				assert.False(t, cfg.Pipeline.SkipSummary)
				assert.Equal(t, DefaultBatchConcurrency, cfg.Pipeline.BatchConcurrency)
				assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
			},
		},
		{
			name: "file values override defaults",
			file: `
pipeline:
  input_encoding: utf_8
  output_dir: /data/out
  write_lfhf_computed: true
logging:
  level: debug
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, EncodingUTF8, cfg.Pipeline.InputEncoding)
				assert.Equal(t, EncodingShiftJIS, cfg.Pipeline.OutputEncoding)
				assert.Equal(t, "/data/out", cfg.Pipeline.OutputDir)
				assert.True(t, cfg.Pipeline.WriteLFHFComputed)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name: "env overrides file",
			file: `
pipeline:
  output_dir: /data/out
  sequence_policy: strict
`,
			env: map[string]string{
				"ETA_PIPELINE_OUTPUT_DIR":      "/env/out",
				"ETA_PIPELINE_SEQUENCE_POLICY": "tolerant",
				"ETA_SERVER_PORT":              "9090",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/env/out", cfg.Pipeline.OutputDir)
				assert.Equal(t, PolicyTolerant, cfg.Pipeline.SequencePolicy)
				assert.Equal(t, 9090, cfg.Server.Port)
			},
		},
		{
			name:    "unknown encoding fails validation",
			env:     map[string]string{"ETA_PIPELINE_OUTPUT_ENCODING": "latin1"},
			wantErr: true,
		},
		{
			name:    "sequence policy lenient is not a sequence policy",
			file:    "pipeline:\n  sequence_policy: lenient\n",
			wantErr: true,
		},
		{
			name:    "batch concurrency out of range",
			env:     map[string]string{"ETA_PIPELINE_BATCH_CONCURRENCY": "500"},
			wantErr: true,
		},
		{
			name:    "malformed env value",
			env:     map[string]string{"ETA_PIPELINE_WRITE_LFHF_COMPUTED": "maybe"},
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			file:    "pipeline: [unclosed",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			path := ""
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}

			cfg, err := LoadFrom(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	os.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
