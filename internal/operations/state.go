package operations

import (
	"sync"
	"time"

	"etaanalyzer/internal/dataprocessing"
	"etaanalyzer/internal/exporter"
	"etaanalyzer/internal/files"
)

// OperationStatusValue represents the overall run status
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// RunSpec is the fixed input of one run
type RunSpec struct {
	Source         string
	Layout         files.RunLayout
	InputEncoding  files.Encoding
	OutputEncoding files.Encoding
	Options        dataprocessing.Options
	SkipSummary    bool
	SkipWorkbook   bool
}

// OperationState represents the complete state of a run
type OperationState struct {
	mu sync.RWMutex

	ID        string               `json:"id"`
	Spec      *RunSpec             `json:"-"`
	Status    OperationStatusValue `json:"status"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`

	Steps map[string]*StepState `json:"steps"`
	order []string

	// Summary is set by the summarize step
	Summary *exporter.CategorySummary `json:"-"`

	Error error `json:"-"`
}

// NewOperationState creates a new run state
func NewOperationState(id string, spec *RunSpec) *OperationState {
	return &OperationState{
		ID:        id,
		Spec:      spec,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
	}
}

// Start marks the run as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the run as completed
func (p *OperationState) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCompleted
}

// Fail marks the run as failed
func (p *OperationState) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusFailed
	p.Error = err
}

// Cancel marks the run as cancelled
func (p *OperationState) Cancel(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCancelled
	p.Error = err
}

// GetStatus returns the current run status
func (p *OperationState) GetStatus() OperationStatusValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// GetStage returns the state of a specific Step
func (p *OperationState) GetStage(stepID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stepID]
}

// SetStage registers the state of a Step, keeping insertion order
func (p *OperationState) SetStage(stepID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.Steps[stepID]; !exists {
		p.order = append(p.order, stepID)
	}
	p.Steps[stepID] = state
}

// StepIDs returns step IDs in execution order
func (p *OperationState) StepIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, len(p.order))
	copy(ids, p.order)
	return ids
}

// SetSummary stores the category summary
func (p *OperationState) SetSummary(s *exporter.CategorySummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Summary = s
}

// GetSummary returns the category summary, nil until the summarize step ran
func (p *OperationState) GetSummary() *exporter.CategorySummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Summary
}

// Duration returns the duration of the run
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// HasFailures returns true if any Step has failed
func (p *OperationState) HasFailures() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, step := range p.Steps {
		if step.GetStatus() == StepStatusFailed {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the run state
func (p *OperationState) Clone() *OperationState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clone := &OperationState{
		ID:        p.ID,
		Spec:      p.Spec,
		Status:    p.Status,
		StartTime: p.StartTime,
		Steps:     make(map[string]*StepState, len(p.Steps)),
		order:     append([]string(nil), p.order...),
		Summary:   p.Summary,
		Error:     p.Error,
	}
	if p.EndTime != nil {
		endTime := *p.EndTime
		clone.EndTime = &endTime
	}
	for k, v := range p.Steps {
		clone.Steps[k] = v.clone()
	}
	return clone
}
