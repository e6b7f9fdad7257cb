package operations

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StatusBroadcaster is the single authority for run status updates.
// It keeps a snapshot per run and pushes every change to the hub.
type StatusBroadcaster struct {
	mu     sync.RWMutex
	runs   map[string]*RunSnapshot
	hub    WebSocketHub
	logger *slog.Logger
}

// RunSnapshot represents the state of a run at a point in time
type RunSnapshot struct {
	RunID       string         `json:"run_id"`
	Status      string         `json:"status"` // pending|running|completed|failed|cancelled
	CurrentStep string         `json:"current_step,omitempty"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// StepSnapshot represents the state of a single step
type StepSnapshot struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"` // pending|active|completed|failed|skipped
	Rows    int    `json:"rows"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewStatusBroadcaster creates a broadcaster. A nil hub only keeps snapshots.
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusBroadcaster{
		runs:   make(map[string]*RunSnapshot),
		hub:    hub,
		logger: logger,
	}
}

// update applies fn to the run's snapshot and returns a copy
func (sb *StatusBroadcaster) update(runID string, fn func(*RunSnapshot)) RunSnapshot {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	snapshot, exists := sb.runs[runID]
	if !exists {
		now := time.Now()
		snapshot = &RunSnapshot{
			RunID:     runID,
			Status:    string(OperationStatusPending),
			StartedAt: now,
			Steps:     []StepSnapshot{},
		}
		sb.runs[runID] = snapshot
	}

	fn(snapshot)
	snapshot.UpdatedAt = time.Now()

	switch OperationStatusValue(snapshot.Status) {
	case OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled:
		if snapshot.CompletedAt == nil {
			now := time.Now()
			snapshot.CompletedAt = &now
		}
	}
	return copySnapshot(snapshot)
}

func (sb *StatusBroadcaster) broadcast(eventType string, event ProgressEvent) {
	if sb.hub == nil {
		return
	}
	sb.logger.Debug("broadcasting run event",
		slog.String("event", eventType),
		slog.String("run_id", event.RunID),
		slog.String("stage", event.Stage),
		slog.String("status", event.Status))
	sb.hub.BroadcastUpdate(eventType, event.Stage, event.Status, event)
}

func (sb *StatusBroadcaster) updateStep(runID, stepID string, fn func(*StepSnapshot)) RunSnapshot {
	return sb.update(runID, func(s *RunSnapshot) {
		for i := range s.Steps {
			if s.Steps[i].ID == stepID {
				fn(&s.Steps[i])
				return
			}
		}
		step := StepSnapshot{ID: stepID, Name: stepID, Status: string(StepStatusPending)}
		fn(&step)
		s.Steps = append(s.Steps, step)
	})
}

// CreateRun initializes a run with its steps in execution order
func (sb *StatusBroadcaster) CreateRun(runID string, steps []Step) {
	sb.update(runID, func(s *RunSnapshot) {
		s.Status = string(OperationStatusPending)
		s.Steps = make([]StepSnapshot, len(steps))
		for i, step := range steps {
			s.Steps[i] = StepSnapshot{ID: step.ID(), Name: step.Name(), Status: string(StepStatusPending)}
		}
	})
}

// StartRun marks a run as running
func (sb *StatusBroadcaster) StartRun(runID string) {
	sb.update(runID, func(s *RunSnapshot) {
		s.Status = string(OperationStatusRunning)
	})
	sb.broadcast(EventTypeRunProgress, ProgressEvent{RunID: runID, Status: string(OperationStatusRunning)})
}

// StartStep marks a step as active
func (sb *StatusBroadcaster) StartStep(runID, stepID string) {
	sb.updateStep(runID, stepID, func(st *StepSnapshot) {
		st.Status = string(StepStatusActive)
	})
	sb.update(runID, func(s *RunSnapshot) { s.CurrentStep = stepID })
	sb.broadcast(EventTypeRunProgress, ProgressEvent{RunID: runID, Stage: stepID, Status: string(StepStatusActive)})
}

// CompleteStep marks a step as completed with the rows it wrote
func (sb *StatusBroadcaster) CompleteStep(runID, stepID string, rows int) {
	sb.updateStep(runID, stepID, func(st *StepSnapshot) {
		st.Status = string(StepStatusCompleted)
		st.Rows = rows
	})
	sb.broadcast(EventTypeRunProgress, ProgressEvent{RunID: runID, Stage: stepID, Status: string(StepStatusCompleted), Rows: rows})
}

// FailStep marks a step as failed
func (sb *StatusBroadcaster) FailStep(runID, stepID string, err error) {
	sb.updateStep(runID, stepID, func(st *StepSnapshot) {
		st.Status = string(StepStatusFailed)
		st.Error = err.Error()
	})
	sb.broadcast(EventTypeRunProgress, ProgressEvent{RunID: runID, Stage: stepID, Status: string(StepStatusFailed), Error: err.Error()})
}

// SkipStep marks a step as skipped
func (sb *StatusBroadcaster) SkipStep(runID, stepID, reason string) {
	sb.updateStep(runID, stepID, func(st *StepSnapshot) {
		st.Status = string(StepStatusSkipped)
		st.Message = reason
	})
}

// CompleteRun marks a run as completed. rows is the final stage's row count.
func (sb *StatusBroadcaster) CompleteRun(runID string, rows int) {
	sb.update(runID, func(s *RunSnapshot) {
		s.Status = string(OperationStatusCompleted)
		s.CurrentStep = ""
	})
	sb.broadcast(EventTypeRunComplete, ProgressEvent{RunID: runID, Status: string(OperationStatusCompleted), Rows: rows})
}

// FailRun marks a run as failed or cancelled
func (sb *StatusBroadcaster) FailRun(runID string, status OperationStatusValue, err error) {
	snap := sb.update(runID, func(s *RunSnapshot) {
		s.Status = string(status)
		s.Error = err.Error()
	})
	sb.broadcast(EventTypeRunError, ProgressEvent{
		RunID:  runID,
		Stage:  snap.CurrentStep,
		Status: string(status),
		Error:  err.Error(),
	})
}

// GetSnapshot returns the current snapshot for a run
func (sb *StatusBroadcaster) GetSnapshot(runID string) (*RunSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshot, exists := sb.runs[runID]
	if !exists {
		return nil, false
	}
	c := copySnapshot(snapshot)
	return &c, true
}

// CleanupOldRuns drops finished snapshots older than maxAge
func (sb *StatusBroadcaster) CleanupOldRuns(ctx context.Context, maxAge time.Duration) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, snapshot := range sb.runs {
		if snapshot.CompletedAt != nil && snapshot.CompletedAt.Before(cutoff) {
			delete(sb.runs, id)
			removed++
		}
	}
	if removed > 0 {
		sb.logger.InfoContext(ctx, "removed old run snapshots", slog.Int("count", removed))
	}
	return removed
}

func copySnapshot(s *RunSnapshot) RunSnapshot {
	c := *s
	c.Steps = append([]StepSnapshot(nil), s.Steps...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
