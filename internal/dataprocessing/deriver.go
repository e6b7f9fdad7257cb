package dataprocessing

import (
	"context"
	"io"
	"log/slog"

	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/pkg/contracts/domain"
)

// Deriver pairs each FixationStarted with the following FixationEnded into
// one element and computes its averaged LF/HF and the change from the
// previous element.
type Deriver struct {
	logger *slog.Logger

	openStart  bool
	startLFHF  float64
	hasElement bool
	previous   float64
	orphans    int
}

// NewDeriver creates a deriver with no open fixation
func NewDeriver(opts Options) *Deriver {
	return &Deriver{logger: opts.logger()}
}

// Derive folds one interpolated row
func (d *Deriver) Derive(rec domain.InterpolatedRecord, line int) (domain.ElementRecord, error) {
	out := domain.ElementRecord{InterpolatedRecord: rec}

	switch rec.Event {
	case domain.EventFixationStarted:
		if rec.InterpolatedLFHF == nil {
			return domain.ElementRecord{}, apperrors.NewParseError(StageDerive, line,
				"FixationStarted row has no LFHF(Interpolated) value", nil)
		}
		d.openStart = true
		d.startLFHF = *rec.InterpolatedLFHF

	case domain.EventFixationEnded:
		if rec.InterpolatedLFHF == nil {
			return domain.ElementRecord{}, apperrors.NewParseError(StageDerive, line,
				"FixationEnded row has no LFHF(Interpolated) value", nil)
		}
		if !d.openStart {
			// Its start fell before the first observation and was dropped upstream.
			d.orphans++
			d.logger.Debug("FixationEnded without an interpolated start, no element",
				slog.String("stage", StageDerive),
				slog.Int("row", line))
			return out, nil
		}

		element := (d.startLFHF + *rec.InterpolatedLFHF) / 2
		out.ElementLFHF = &element
		if d.hasElement {
			delta := element - d.previous
			out.ElementLFHFDelta = &delta
		}
		d.hasElement = true
		d.previous = element
		d.openStart = false
	}

	return out, nil
}

// Orphans counts FixationEnded rows that produced no element
func (d *Deriver) Orphans() int {
	return d.orphans
}

// DeriveRows is the ElementMetricDeriver stage: interpolated rows in, element rows out.
func DeriveRows(ctx context.Context, r io.Reader, w io.Writer, opts Options) (StageStats, error) {
	stats := StageStats{Stage: StageDerive}
	logger := opts.logger()
	in := newLineReader(r)
	out := newLineWriter(w)
	d := NewDeriver(opts)

	header, err := in.next()
	if err == io.EOF {
		return stats, apperrors.NewSchemaError(StageDerive, "input is empty, expected a header line")
	}
	if err != nil {
		return stats, opts.readError(StageDerive, in.lineNumber(), err)
	}
	if err := expectHeader(StageDerive, header, domain.InterpolatedHeader); err != nil {
		return stats, err
	}
	if err := out.write(domain.ElementHeader); err != nil {
		return stats, opts.writeError(StageDerive, err)
	}

	for {
		fields, err := in.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, opts.readError(StageDerive, in.lineNumber(), err)
		}
		stats.RowsRead++
		if err := checkContext(ctx, stats.RowsRead); err != nil {
			return stats, err
		}

		rec, err := domain.ParseInterpolatedFields(fields)
		if err != nil {
			return stats, apperrors.NewParseError(StageDerive, in.lineNumber(), err.Error(), nil)
		}
		element, err := d.Derive(rec, in.lineNumber())
		if err != nil {
			return stats, err
		}
		if err := out.writeRow(element.Fields()); err != nil {
			return stats, opts.writeError(StageDerive, err)
		}
	}

	if err := out.flush(); err != nil {
		return stats, opts.writeError(StageDerive, err)
	}
	stats.RowsWritten = out.rows
	stats.Warnings = d.Orphans()
	logger.Debug("stage complete",
		slog.String("stage", StageDerive),
		slog.Int("rows_written", stats.RowsWritten),
		slog.Int("orphan_ends", d.Orphans()))
	return stats, nil
}
