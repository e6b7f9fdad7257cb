package dataprocessing

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/pkg/contracts/domain"
)

type pendingBoundary struct {
	rec  domain.CategorizedRecord
	at   int64
	line int
}

// Interpolator projects the sparse LF/HF observations onto fixation
// boundaries. Boundaries are held until the next observation closes the
// window [t0, t1] around them.
type Interpolator struct {
	writeObserved bool
	policy        SequencePolicy
	logger        *slog.Logger

	observed  bool
	lastTime  int64
	lastValue float64
	pending   []pendingBoundary

	droppedLeading int
	warnings       int
}

// NewInterpolator creates an interpolator that has seen no observation yet
func NewInterpolator(opts Options) *Interpolator {
	return &Interpolator{
		writeObserved: opts.WriteLFHFComputed,
		policy:        opts.SequencePolicy,
		logger:        opts.logger(),
	}
}

// Interpolate folds one categorized row and returns the rows ready for
// output, in emission order. Boundary rows come out only when the next
// observation arrives.
func (ip *Interpolator) Interpolate(rec domain.CategorizedRecord, line int) ([]domain.InterpolatedRecord, error) {
	switch rec.Event {
	case domain.EventFixationStarted, domain.EventFixationEnded:
		if !ip.observed {
			ip.droppedLeading++
			return nil, nil
		}
		at, err := rec.Filtered.AppTimeMillis()
		if err != nil {
			return nil, apperrors.NewParseError(StageInterpolate, line, err.Error(), nil)
		}
		ip.pending = append(ip.pending, pendingBoundary{rec: rec, at: at, line: line})
		return nil, nil

	case domain.EventLFHFComputed:
		return ip.observe(rec, line)

	default:
		return []domain.InterpolatedRecord{{CategorizedRecord: rec}}, nil
	}
}

func (ip *Interpolator) observe(rec domain.CategorizedRecord, line int) ([]domain.InterpolatedRecord, error) {
	t1, err := rec.Filtered.AppTimeMillis()
	if err != nil {
		return nil, apperrors.NewParseError(StageInterpolate, line, err.Error(), nil)
	}
	v1, err := rec.Filtered.LFHFValue()
	if err != nil {
		return nil, apperrors.NewParseError(StageInterpolate, line, err.Error(), nil)
	}

	var out []domain.InterpolatedRecord
	if ip.observed {
		t0, v0 := ip.lastTime, ip.lastValue
		if t1 <= t0 {
			return nil, apperrors.NewSequenceError(StageInterpolate, line,
				fmt.Sprintf("observation interval [%d, %d] has no positive length", t0, t1))
		}
		out = make([]domain.InterpolatedRecord, 0, len(ip.pending)+1)
		for _, p := range ip.pending {
			if p.at < t0 || p.at > t1 {
				if ip.policy != SequenceTolerant {
					return nil, apperrors.NewSequenceError(StageInterpolate, p.line,
						fmt.Sprintf("AppTime %d lies outside observation window [%d, %d]", p.at, t0, t1))
				}
				ip.warnings++
				ip.logger.Warn("extrapolating boundary outside observation window",
					slog.String("stage", StageInterpolate),
					slog.Int("row", p.line),
					slog.Int64("app_time", p.at))
			}
			v := Lerp(t0, v0, t1, v1, p.at)
			out = append(out, domain.InterpolatedRecord{CategorizedRecord: p.rec, InterpolatedLFHF: &v})
		}
	}

	if ip.writeObserved {
		v := v1
		out = append(out, domain.InterpolatedRecord{CategorizedRecord: rec, InterpolatedLFHF: &v})
	}

	ip.observed = true
	ip.lastTime = t1
	ip.lastValue = v1
	ip.pending = ip.pending[:0]
	return out, nil
}

// Close ends the stream. Boundaries still waiting for a right-hand
// observation cannot be interpolated and are dropped; the count is returned.
func (ip *Interpolator) Close() int {
	n := len(ip.pending)
	if n > 0 {
		ip.logger.Warn("dropping boundary rows after the last observation",
			slog.String("stage", StageInterpolate),
			slog.Int("rows", n))
	}
	ip.pending = nil
	return n
}

// DroppedLeading counts boundary rows seen before the first observation
func (ip *Interpolator) DroppedLeading() int {
	return ip.droppedLeading
}

// Warnings returns the number of extrapolated rows
func (ip *Interpolator) Warnings() int {
	return ip.warnings
}

// Lerp evaluates the line through (t0, v0) and (t1, v1) at t. t1 must differ from t0.
func Lerp(t0 int64, v0 float64, t1 int64, v1 float64, t int64) float64 {
	return v0 + float64(t-t0)*(v1-v0)/float64(t1-t0)
}

// InterpolateRows is the TemporalInterpolator stage: categorized rows in,
// interpolated rows out.
func InterpolateRows(ctx context.Context, r io.Reader, w io.Writer, opts Options) (StageStats, error) {
	stats := StageStats{Stage: StageInterpolate}
	logger := opts.logger()
	in := newLineReader(r)
	out := newLineWriter(w)
	ip := NewInterpolator(opts)

	header, err := in.next()
	if err == io.EOF {
		return stats, apperrors.NewSchemaError(StageInterpolate, "input is empty, expected a header line")
	}
	if err != nil {
		return stats, opts.readError(StageInterpolate, in.lineNumber(), err)
	}
	if err := expectHeader(StageInterpolate, header, domain.CategorizedHeader); err != nil {
		return stats, err
	}
	if err := out.write(domain.InterpolatedHeader); err != nil {
		return stats, opts.writeError(StageInterpolate, err)
	}

	for {
		fields, err := in.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, opts.readError(StageInterpolate, in.lineNumber(), err)
		}
		stats.RowsRead++
		if err := checkContext(ctx, stats.RowsRead); err != nil {
			return stats, err
		}

		rec, err := domain.ParseCategorizedFields(fields)
		if err != nil {
			return stats, apperrors.NewParseError(StageInterpolate, in.lineNumber(), err.Error(), nil)
		}
		ready, err := ip.Interpolate(rec, in.lineNumber())
		if err != nil {
			return stats, err
		}
		for _, r := range ready {
			if err := out.writeRow(r.Fields()); err != nil {
				return stats, opts.writeError(StageInterpolate, err)
			}
		}
	}

	trailing := ip.Close()
	if err := out.flush(); err != nil {
		return stats, opts.writeError(StageInterpolate, err)
	}

	stats.RowsWritten = out.rows
	stats.RowsDropped = ip.DroppedLeading() + trailing
	stats.Warnings = ip.Warnings()
	logger.Debug("stage complete",
		slog.String("stage", StageInterpolate),
		slog.Int("rows_written", stats.RowsWritten),
		slog.Int("dropped_before_first_observation", ip.DroppedLeading()),
		slog.Int("dropped_after_last_observation", trailing))
	return stats, nil
}
