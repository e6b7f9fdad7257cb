package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"etaanalyzer/internal/files"
)

// Skipper is implemented by steps that can opt out of a run
type Skipper interface {
	ShouldSkip(state *OperationState) (bool, string)
}

// Manager orchestrates run execution
type Manager struct {
	registry    *Registry
	config      *Config
	broadcaster *StatusBroadcaster
	tracer      *OperationTracer
	logger      *slog.Logger

	// Active runs
	mu         sync.RWMutex
	operations map[string]*OperationState
}

// NewManager creates a run manager. A nil registry or config gets the defaults.
func NewManager(hub WebSocketHub, registry *Registry, config *Config) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}

	return &Manager{
		registry:    registry,
		config:      config,
		broadcaster: NewStatusBroadcaster(hub, slog.Default()),
		tracer:      NewOperationTracer(nil),
		logger:      slog.Default(),
		operations:  make(map[string]*OperationState),
	}
}

// SetLogger replaces the manager's logger
func (m *Manager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
		m.broadcaster.logger = logger
	}
}

// SetTracer replaces the run tracer
func (m *Manager) SetTracer(tracer *OperationTracer) {
	if tracer != nil {
		m.tracer = tracer
	}
}

// RegisterStage registers a Step with the manager
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// GetRegistry returns the registry for accessing registered steps
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetBroadcaster returns the status broadcaster
func (m *Manager) GetBroadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Execute runs every registered step in dependency order against state.
// The run manifest is written whether the run succeeds or not.
func (m *Manager) Execute(ctx context.Context, state *OperationState) (*OperationResponse, error) {
	if state == nil || state.ID == "" {
		return nil, NewFatalError("run state requires an id", nil)
	}

	m.storeOperation(state)
	defer m.removeOperation(state.ID)

	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		m.logOperationError(ctx, state.ID, err)
		state.Fail(err)
		return m.createResponse(state, nil), NewFatalError("failed to order steps", err)
	}

	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}
	m.broadcaster.CreateRun(state.ID, steps)

	ctx, span := m.tracer.TraceRun(ctx, state.ID, sourceOf(state))
	defer span.End()

	state.Start()
	m.broadcaster.StartRun(state.ID)
	m.logOperationStart(ctx, state)

	err = m.executeSequential(ctx, state, steps)

	switch {
	case err == nil:
		state.Complete()
	case GetErrorType(err) == ErrorTypeCancellation:
		state.Cancel(err)
	default:
		state.Fail(err)
	}

	manifest := m.writeManifest(ctx, state)
	if err == nil {
		m.broadcaster.CompleteRun(state.ID, lastRows(state, steps))
	} else {
		m.broadcaster.FailRun(state.ID, state.GetStatus(), err)
	}

	m.tracer.RecordRunCompletion(ctx, span, state.Duration(), state.GetStatus(), err)
	m.logOperationComplete(ctx, state.ID, state.Duration(), string(state.GetStatus()))
	return m.createResponse(state, manifest), err
}

// executeSequential executes steps one by one
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	for i, step := range steps {
		stepState := state.GetStage(step.ID())

		if err := ctx.Err(); err != nil {
			m.logger.WarnContext(ctx, "run_cancelled",
				slog.String("run_id", state.ID),
				slog.String("step", step.ID()))
			m.skipRemaining(state, steps[i:], "run cancelled")
			return NewCancellationError(step.ID(), err)
		}

		if stepState.GetStatus() == StepStatusSkipped {
			continue
		}
		if skipper, ok := step.(Skipper); ok {
			if skip, reason := skipper.ShouldSkip(state); skip {
				stepState.Skip(reason)
				m.broadcaster.SkipStep(state.ID, step.ID(), reason)
				m.logger.InfoContext(ctx, "step_skipped",
					slog.String("run_id", state.ID),
					slog.String("step", step.ID()),
					slog.String("reason", reason))
				continue
			}
		}

		m.logger.DebugContext(ctx, "executing_step",
			slog.String("run_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("step_number", i+1),
			slog.Int("total_steps", len(steps)))

		if err := m.executeStage(ctx, state, step); err != nil {
			m.logStageError(ctx, state.ID, step.ID(), err)
			m.skipDependentStages(state, steps, step.ID())
			return err
		}
	}
	return nil
}

// executeStage executes a single Step with retry logic
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return NewFatalError(fmt.Sprintf("state for step %s not found", step.ID()), nil)
	}

	if err := m.checkDependencies(state, step); err != nil {
		stepState.Skip(err.Error())
		m.broadcaster.SkipStep(state.ID, step.ID(), err.Error())
		return err
	}

	if err := step.Validate(state); err != nil {
		verr := NewValidationError(step.ID(), err.Error())
		stepState.Fail(verr)
		m.broadcaster.FailStep(state.ID, step.ID(), verr)
		return verr
	}

	timeout := m.config.GetStageTimeout(step.ID())
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retryConfig := m.config.RetryConfig
	if retryConfig.MaxAttempts < 1 {
		retryConfig.MaxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		stepState.Start()
		m.broadcaster.StartStep(state.ID, step.ID())
		m.logStageStart(ctx, state.ID, step.ID(), attempt)

		spanCtx, span := m.tracer.TraceStep(stageCtx, state.ID, step.ID())
		start := time.Now()
		err := step.Execute(spanCtx, state)
		duration := time.Since(start)
		err = m.classify(ctx, stageCtx, step.ID(), timeout, err)
		m.tracer.RecordStepCompletion(spanCtx, span, step.ID(), duration, stepState.clone().Stats, err)
		span.End()

		if err == nil {
			stepState.Complete()
			m.broadcaster.CompleteStep(state.ID, step.ID(), rowsOf(stepState))
			m.logStageComplete(ctx, state.ID, stepState, duration)
			return nil
		}

		if !IsRetryable(err) || attempt >= retryConfig.MaxAttempts {
			stepState.Fail(err)
			m.broadcaster.FailStep(state.ID, step.ID(), err)
			return WrapError(err, step.ID(), "step execution failed")
		}

		delay := m.calculateRetryDelay(attempt, retryConfig)
		m.logger.WarnContext(ctx, "step_retry",
			slog.String("run_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retryConfig.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-stageCtx.Done():
			err := m.classify(ctx, stageCtx, step.ID(), timeout, stageCtx.Err())
			stepState.Fail(err)
			m.broadcaster.FailStep(state.ID, step.ID(), err)
			return err
		}
	}
}

// classify turns context failures into timeout or cancellation errors
func (m *Manager) classify(parent, stageCtx context.Context, stepID string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return NewCancellationError(stepID, err)
	}
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(stepID, timeout.String(), err)
	}
	return err
}

// skipDependentStages marks all steps that depend on the failed Step as skipped
func (m *Manager) skipDependentStages(state *OperationState, steps []Step, failedStepID string) {
	for _, step := range steps {
		for _, dep := range step.GetDependencies() {
			if dep != failedStepID {
				continue
			}
			stepState := state.GetStage(step.ID())
			if stepState != nil && stepState.GetStatus() == StepStatusPending {
				reason := fmt.Sprintf("dependency %s did not complete", failedStepID)
				stepState.Skip(reason)
				m.broadcaster.SkipStep(state.ID, step.ID(), reason)
				m.skipDependentStages(state, steps, step.ID())
			}
			break
		}
	}
}

func (m *Manager) skipRemaining(state *OperationState, steps []Step, reason string) {
	for _, step := range steps {
		if st := state.GetStage(step.ID()); st != nil && st.GetStatus() == StepStatusPending {
			st.Skip(reason)
			m.broadcaster.SkipStep(state.ID, step.ID(), reason)
		}
	}
}

// checkDependencies verifies that all dependencies completed
func (m *Manager) checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			return NewDependencyError(step.ID(), dep, fmt.Sprintf("dependency %s not found", dep))
		}
		if status := depState.GetStatus(); status != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep, fmt.Sprintf("dependency %s not completed (status: %s)", dep, status))
		}
	}
	return nil
}

// calculateRetryDelay grows the delay geometrically up to MaxDelay
func (m *Manager) calculateRetryDelay(attempt int, config RetryConfig) time.Duration {
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

// writeManifest records the run next to its outputs. Failures are logged only.
func (m *Manager) writeManifest(ctx context.Context, state *OperationState) *RunManifest {
	if !m.config.WriteManifest || state.Spec == nil {
		return nil
	}

	manifest, err := BuildManifest(state)
	if err != nil {
		m.logger.ErrorContext(ctx, "manifest_build_failed",
			slog.String("run_id", state.ID),
			slog.String("error", err.Error()))
		return nil
	}

	path := state.Spec.Layout.Path(files.ArtifactManifest)
	if err := manifest.SaveToFile(path); err != nil {
		m.logger.ErrorContext(ctx, "manifest_write_failed",
			slog.String("run_id", state.ID),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return manifest
	}
	m.logger.InfoContext(ctx, "output_committed",
		slog.String("run_id", state.ID),
		slog.String("path", path))
	return manifest
}

// createResponse creates a run response from state
func (m *Manager) createResponse(state *OperationState, manifest *RunManifest) *OperationResponse {
	snap := state.Clone()
	resp := &OperationResponse{
		ID:       snap.ID,
		Status:   snap.Status,
		Duration: state.Duration(),
		Steps:    snap.Steps,
		Manifest: manifest,
	}
	if snap.Error != nil {
		resp.Error = snap.Error.Error()
	}
	return resp
}

// GetOperation retrieves the state of a running run
func (m *Manager) GetOperation(id string) (*OperationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.operations[id]
	if !exists {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return state.Clone(), nil
}

// ListOperations returns all active runs
func (m *Manager) ListOperations() []*OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	operations := make([]*OperationState, 0, len(m.operations))
	for _, state := range m.operations {
		operations = append(operations, state.Clone())
	}
	return operations
}

func (m *Manager) storeOperation(state *OperationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[state.ID] = state
}

func (m *Manager) removeOperation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.operations, id)
}

func sourceOf(state *OperationState) string {
	if state.Spec == nil {
		return ""
	}
	return state.Spec.Source
}

func rowsOf(st *StepState) int {
	c := st.clone()
	if c.Stats == nil {
		return 0
	}
	return c.Stats.RowsWritten
}

// lastRows is the row count of the last completed step
func lastRows(state *OperationState, steps []Step) int {
	for i := len(steps) - 1; i >= 0; i-- {
		if st := state.GetStage(steps[i].ID()); st != nil && st.GetStatus() == StepStatusCompleted {
			return rowsOf(st)
		}
	}
	return 0
}
