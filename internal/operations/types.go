package operations

import (
	"time"

	"etaanalyzer/internal/dataprocessing"
	"etaanalyzer/pkg/contracts/events"
)

// Step identifiers, in pipeline order
const (
	StepIDProject     = dataprocessing.StageProject
	StepIDCategorize  = dataprocessing.StageCategorize
	StepIDInterpolate = dataprocessing.StageInterpolate
	StepIDDerive      = dataprocessing.StageDerive
	StepIDSummarize   = dataprocessing.StageSummarize
)

// Step names
const (
	StepNameProject     = "Row Projection"
	StepNameCategorize  = "Event Categorization"
	StepNameInterpolate = "LF/HF Interpolation"
	StepNameDerive      = "Element Metrics"
	StepNameSummarize   = "Category Summary"
)

// WebSocket event types
const (
	EventTypeRunProgress = events.TypeRunProgress
	EventTypeRunComplete = events.TypeRunComplete
	EventTypeRunError    = events.TypeRunError
)

// Default timeouts
const (
	DefaultStageTimeout = 30 * time.Minute
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration. Stage failures
// are data errors, so a step runs once unless it reports a retryable error.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  1,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationResponse is the outcome of one Manager.Execute call
type OperationResponse struct {
	ID       string                `json:"id"`
	Status   OperationStatusValue  `json:"status"`
	Duration time.Duration         `json:"duration"`
	Steps    map[string]*StepState `json:"steps"`
	Manifest *RunManifest          `json:"manifest,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// ProgressEvent is the payload of every run:* websocket event
type ProgressEvent = events.ProgressEvent
