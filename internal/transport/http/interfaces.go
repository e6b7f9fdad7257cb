package http

import (
	"etaanalyzer/internal/exporter"
	"etaanalyzer/internal/operations"
	"etaanalyzer/internal/services"
)

// RunService is the part of services.PipelineService the run handlers use
type RunService interface {
	Submit(req services.RunRequest) (string, error)
	GetRun(id string) (*services.RunRecord, error)
	ListRuns(filter services.RunFilter) []*services.RunRecord
	Summary(id string) (*exporter.CategorySummary, error)
	Progress(id string) (*operations.RunSnapshot, bool)
}

// HubStats reports websocket hub counters
type HubStats interface {
	Stats() map[string]int64
}
