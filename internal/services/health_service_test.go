package services

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRunCounter struct{ mock.Mock }

func (m *mockRunCounter) ActiveRuns() int {
	return m.Called().Int(0)
}

type mockClientCounter struct{ mock.Mock }

func (m *mockClientCounter) ClientCount() int {
	return m.Called().Int(0)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthService_Readiness(t *testing.T) {
	runs := &mockRunCounter{}
	runs.On("ActiveRuns").Return(2)
	hub := &mockClientCounter{}

	hs := NewHealthService("1.2.3", "", t.TempDir(), runs, hub, quietLogger())
	status := hs.ReadinessCheck(context.Background())

	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, "2 active runs", status.Services["pipeline"].(ServiceHealth).Message)
	runs.AssertExpectations(t)
}

func TestHealthService_NotReady(t *testing.T) {
	tests := []struct {
		name      string
		runs      RunCounter
		hub       ClientCounter
		outputDir func(t *testing.T) string
		failing   string
	}{
		{
			name:      "no pipeline",
			hub:       &mockClientCounter{},
			outputDir: func(t *testing.T) string { return t.TempDir() },
			failing:   "pipeline",
		},
		{
			name: "no hub",
			runs: func() RunCounter {
				m := &mockRunCounter{}
				m.On("ActiveRuns").Return(0)
				return m
			}(),
			outputDir: func(t *testing.T) string { return t.TempDir() },
			failing:   "websocket",
		},
		{
			name: "output dir is a file",
			runs: func() RunCounter {
				m := &mockRunCounter{}
				m.On("ActiveRuns").Return(0)
				return m
			}(),
			hub: &mockClientCounter{},
			outputDir: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "file")
				if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
					t.Fatal(err)
				}
				return path
			},
			failing: "output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := NewHealthService("v", "", tt.outputDir(t), tt.runs, tt.hub, quietLogger())
			status := hs.ReadinessCheck(context.Background())
			assert.Equal(t, "not_ready", status.Status)
			assert.Equal(t, "not_ready", status.Services[tt.failing].(ServiceHealth).Status)
		})
	}
}

func TestHealthService_LivenessAndVersion(t *testing.T) {
	runs := &mockRunCounter{}
	runs.On("ActiveRuns").Return(1)
	hub := &mockClientCounter{}
	hub.On("ClientCount").Return(3)

	hs := NewHealthService("1.0.0", "2024-05-01", t.TempDir(), runs, hub, quietLogger())

	live := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", live.Status)
	assert.Equal(t, 1, live.Runtime["active_runs"])
	assert.Equal(t, 3, live.Runtime["websocket_clients"])

	v := hs.Version()
	assert.Equal(t, "1.0.0", v["version"])
	assert.Equal(t, "2024-05-01", v["build_time"])

	assert.Equal(t, "ok", hs.HealthCheck(context.Background()).Status)
	hub.AssertExpectations(t)
}
