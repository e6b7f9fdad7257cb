package operations

import (
	"context"
	"log/slog"
	"time"
)

// logOperationStart logs the start of a run
func (m *Manager) logOperationStart(ctx context.Context, state *OperationState) {
	attrs := []any{slog.String("run_id", state.ID)}
	if spec := state.Spec; spec != nil {
		attrs = append(attrs,
			slog.String("source", spec.Source),
			slog.String("output_dir", spec.Layout.Dir()),
			slog.String("input_encoding", string(spec.InputEncoding)),
			slog.String("output_encoding", string(spec.OutputEncoding)),
			slog.String("header_policy", string(spec.Options.HeaderPolicy)),
			slog.String("sequence_policy", string(spec.Options.SequencePolicy)))
	}
	m.logger.InfoContext(ctx, "run_start", attrs...)
}

// logOperationComplete logs the end of a run
func (m *Manager) logOperationComplete(ctx context.Context, runID string, duration time.Duration, status string) {
	m.logger.InfoContext(ctx, "run_complete",
		slog.String("run_id", runID),
		slog.String("status", status),
		slog.Duration("duration", duration))
}

func (m *Manager) logOperationError(ctx context.Context, runID string, err error) {
	errorMsg := "unknown error"
	if err != nil {
		errorMsg = err.Error()
	}
	m.logger.ErrorContext(ctx, "run_error",
		slog.String("run_id", runID),
		slog.String("error", errorMsg))
}

func (m *Manager) logStageStart(ctx context.Context, runID, stepID string, attempt int) {
	m.logger.InfoContext(ctx, "stage_start",
		slog.String("run_id", runID),
		slog.String("stage", stepID),
		slog.Int("attempt", attempt))
}

// logStageComplete logs the completion of a step with its row counters
func (m *Manager) logStageComplete(ctx context.Context, runID string, step *StepState, duration time.Duration) {
	snap := step.clone()
	attrs := []any{
		slog.String("run_id", runID),
		slog.String("stage", snap.ID),
		slog.Duration("duration", duration),
	}
	if snap.Stats != nil {
		attrs = append(attrs,
			slog.Int("rows_read", snap.Stats.RowsRead),
			slog.Int("rows_written", snap.Stats.RowsWritten),
			slog.Int("rows_dropped", snap.Stats.RowsDropped),
			slog.Int("warnings", snap.Stats.Warnings))
	}
	m.logger.InfoContext(ctx, "stage_complete", attrs...)
}

func (m *Manager) logStageError(ctx context.Context, runID, stepID string, err error) {
	errorMsg := "unknown error"
	if err != nil {
		errorMsg = err.Error()
	}
	m.logger.ErrorContext(ctx, "stage_error",
		slog.String("run_id", runID),
		slog.String("stage", stepID),
		slog.String("error_type", string(GetErrorType(err))),
		slog.String("error", errorMsg))
}
