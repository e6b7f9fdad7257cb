package operations_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etaanalyzer/internal/dataprocessing"
	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/internal/operations"
)

func newTestManager(t *testing.T, hub operations.WebSocketHub, config *operations.Config, steps ...operations.Step) *operations.Manager {
	t.Helper()
	if config == nil {
		config = noManifest()
	}
	m := operations.NewManager(hub, nil, config)
	for _, s := range steps {
		require.NoError(t, m.RegisterStage(s))
	}
	return m
}

func TestManagerDefaults(t *testing.T) {
	m := operations.NewManager(nil, nil, nil)
	assert.NotNil(t, m.GetRegistry())
	assert.NotNil(t, m.GetBroadcaster())
	assert.True(t, m.GetConfig().WriteManifest)
	assert.Empty(t, m.ListOperations())
}

func TestManagerExecuteSequential(t *testing.T) {
	var order []string
	record := func(id string) func(context.Context, *operations.OperationState) error {
		return func(_ context.Context, state *operations.OperationState) error {
			order = append(order, id)
			state.GetStage(id).Record(dataprocessing.StageStats{Stage: id, RowsRead: 3, RowsWritten: 2})
			return nil
		}
	}

	hub := &recordingHub{}
	m := newTestManager(t, hub, nil,
		newFuncStep("c", record("c"), "b"),
		newFuncStep("a", record("a")),
		newFuncStep("b", record("b"), "a"),
	)

	state := operations.NewOperationState("run-1", nil)
	resp, err := m.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	assert.Equal(t, "run-1", resp.ID)
	assert.Empty(t, resp.Error)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, operations.StepStatusCompleted, resp.Steps[id].Status, id)
	}

	last := hub.Last()
	assert.Equal(t, operations.EventTypeRunComplete, last.EventType)
	assert.Equal(t, 2, last.Event.Rows)

	snap, ok := m.GetBroadcaster().GetSnapshot("run-1")
	require.True(t, ok)
	assert.Equal(t, "completed", snap.Status)
	require.Len(t, snap.Steps, 3)
	assert.Equal(t, "a", snap.Steps[0].ID)
	assert.Equal(t, 2, snap.Steps[2].Rows)
	assert.NotNil(t, snap.CompletedAt)

	_, err = m.GetOperation("run-1")
	assert.Error(t, err, "finished runs are no longer active")
}

func TestManagerFailureSkipsDependents(t *testing.T) {
	schemaErr := apperrors.NewSchemaError("a", "missing column")

	hub := &recordingHub{}
	b := newFuncStep("b", nil, "a")
	c := newFuncStep("c", nil, "b")
	other := newFuncStep("other", nil)
	m := newTestManager(t, hub, nil,
		newFuncStep("a", func(context.Context, *operations.OperationState) error { return schemaErr }),
		b, c, other,
	)

	state := operations.NewOperationState("run-2", nil)
	resp, err := m.Execute(context.Background(), state)
	require.Error(t, err)

	assert.True(t, errors.Is(err, apperrors.ErrSchema))
	assert.Equal(t, operations.OperationStatusFailed, resp.Status)
	assert.Contains(t, resp.Error, "missing column")

	assert.Equal(t, operations.StepStatusFailed, resp.Steps["a"].Status)
	assert.Equal(t, operations.StepStatusSkipped, resp.Steps["b"].Status)
	assert.Equal(t, operations.StepStatusSkipped, resp.Steps["c"].Status)
	assert.Zero(t, b.Calls())
	assert.Zero(t, c.Calls())
	assert.Zero(t, other.Calls(), "the run stops at the first failure")

	last := hub.Last()
	assert.Equal(t, operations.EventTypeRunError, last.EventType)
	assert.Equal(t, "failed", last.Status)
	assert.Equal(t, "a", last.Event.Stage)
}

func TestManagerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	second := newFuncStep("second", nil, "first")
	m := newTestManager(t, nil, nil,
		newFuncStep("first", func(context.Context, *operations.OperationState) error {
			cancel()
			return nil
		}),
		second,
	)

	state := operations.NewOperationState("run-3", nil)
	resp, err := m.Execute(ctx, state)
	require.Error(t, err)

	assert.Equal(t, operations.ErrorTypeCancellation, operations.GetErrorType(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, operations.OperationStatusCancelled, resp.Status)
	assert.Equal(t, operations.StepStatusSkipped, resp.Steps["second"].Status)
	assert.Zero(t, second.Calls())
}

func TestManagerStageTimeout(t *testing.T) {
	config := operations.NewConfigBuilder().
		WithManifest(false).
		WithStageTimeout("slow", 20*time.Millisecond).
		Build()

	m := newTestManager(t, nil, config,
		newFuncStep("slow", func(ctx context.Context, _ *operations.OperationState) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)

	resp, err := m.Execute(context.Background(), operations.NewOperationState("run-4", nil))
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeTimeout, operations.GetErrorType(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, operations.OperationStatusFailed, resp.Status)
}

func TestManagerRetry(t *testing.T) {
	attempts := 0
	flaky := newFuncStep("flaky", func(context.Context, *operations.OperationState) error {
		attempts++
		if attempts < 3 {
			return operations.NewExecutionError("flaky", errors.New("transient"), true)
		}
		return nil
	})

	config := operations.NewConfigBuilder().
		WithManifest(false).
		WithRetryConfig(operations.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		}).
		Build()

	m := newTestManager(t, nil, config, flaky)
	resp, err := m.Execute(context.Background(), operations.NewOperationState("run-5", nil))
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.Calls())
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
}

func TestManagerNoRetryForDataErrors(t *testing.T) {
	bad := newFuncStep("bad", func(context.Context, *operations.OperationState) error {
		return apperrors.NewParseError("bad", 4, "not an integer", nil)
	})
	config := operations.NewConfigBuilder().
		WithManifest(false).
		WithRetryConfig(operations.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}).
		Build()

	m := newTestManager(t, nil, config, bad)
	_, err := m.Execute(context.Background(), operations.NewOperationState("run-6", nil))
	require.Error(t, err)
	assert.Equal(t, 1, bad.Calls())
	assert.True(t, errors.Is(err, apperrors.ErrParse))
}

func TestManagerRequiresRunID(t *testing.T) {
	m := operations.NewManager(nil, nil, nil)
	_, err := m.Execute(context.Background(), operations.NewOperationState("", nil))
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeFatal, operations.GetErrorType(err))
}
