package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"etaanalyzer/internal/config"
)

func testTelemetryConfig(trace, metrics string) config.TelemetryConfig {
	return config.TelemetryConfig{
		ServiceName:    "eta-test",
		Environment:    "test",
		TraceExporter:  trace,
		MetricExporter: metrics,
		SampleRatio:    1.0,
	}
}

func TestInitializeOTel(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.TelemetryConfig
		wantErr    bool
		wantTracer bool
		wantProm   bool
	}{
		{name: "all disabled", cfg: testTelemetryConfig("none", "none")},
		{name: "stdout traces", cfg: testTelemetryConfig("stdout", "none"), wantTracer: true},
		{name: "prometheus metrics", cfg: testTelemetryConfig("none", "prometheus"), wantProm: true},
		{name: "unknown trace exporter", cfg: testTelemetryConfig("otlp", "none"), wantErr: true},
		{name: "unknown metric exporter", cfg: testTelemetryConfig("none", "statsd"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			providers, err := InitializeOTel(tt.cfg, NewLogger(&logs, "debug"))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer providers.Shutdown(context.Background())

			assert.NotNil(t, providers.Tracer)
			assert.NotNil(t, providers.Meter)
			assert.Equal(t, tt.wantTracer, providers.TracerProvider != nil)
			assert.Equal(t, tt.wantProm, providers.PrometheusHTTP != nil)
		})
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	providers, err := InitializeOTel(testTelemetryConfig("none", "prometheus"), NewLogger(&bytes.Buffer{}, "info"))
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreatePipelineMetrics(providers.Meter)
	require.NoError(t, err)
	metrics.RecordStage(context.Background(), "categorize", time.Second, 10, 0, 1, nil)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pipeline_rows_written_total")
}

func TestPipelineMetrics_RecordStage(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := CreatePipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordStage(ctx, "interpolate", 50*time.Millisecond, 8, 2, 0, nil)
	metrics.RecordStage(ctx, "derive", 10*time.Millisecond, 0, 0, 0, errors.New("boom"))
	metrics.RecordRun(ctx, time.Second, false)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["pipeline_rows_written_total"])
	assert.True(t, names["pipeline_rows_dropped_total"])
	assert.True(t, names["pipeline_errors_total"])
	assert.True(t, names["pipeline_runs_total"])
	assert.False(t, names["pipeline_stage_warnings_total"])
}

func TestPipelineMetrics_NilSafe(t *testing.T) {
	var metrics *PipelineMetrics
	assert.NotPanics(t, func() {
		metrics.RecordStage(context.Background(), "project", time.Second, 1, 0, 0, nil)
		metrics.RecordRun(context.Background(), time.Second, true)
		metrics.RecordActiveRunChange(context.Background(), 1)
	})
}

func TestTraceIDFromContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	assert.Empty(t, TraceIDFromContext(context.Background()))

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.Len(t, TraceIDFromContext(ctx), 32)

	assert.NotPanics(t, func() {
		RecordError(ctx, errors.New("boom"))
	})
}
