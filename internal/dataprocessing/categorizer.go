package dataprocessing

import (
	"context"
	"io"
	"log/slog"

	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/pkg/contracts/domain"
)

// Categorizer labels filtered rows and pairs fixation ends with the last start.
// It is a fold: all carried state lives on the value, none is global.
type Categorizer struct {
	dict   *Dictionary
	policy SequencePolicy
	logger *slog.Logger

	number        int
	hasStarted    bool
	lastStartTime int64
	lastCategory  domain.Category
	warnings      int
}

// NewCategorizer creates a categorizer with empty carried state
func NewCategorizer(opts Options) *Categorizer {
	return &Categorizer{
		dict:   opts.dictionary(),
		policy: opts.SequencePolicy,
		logger: opts.logger(),
	}
}

// Categorize folds one filtered row. row is the input line, used in errors.
func (c *Categorizer) Categorize(rec domain.FilteredRecord, row int) (domain.CategorizedRecord, error) {
	kind, err := rec.Kind()
	if err != nil {
		return domain.CategorizedRecord{}, apperrors.NewParseError(StageCategorize, row, err.Error(), nil)
	}

	out := domain.CategorizedRecord{Event: kind, Filtered: rec}

	switch kind {
	case domain.EventFixationStarted:
		at, err := rec.AppTimeMillis()
		if err != nil {
			return domain.CategorizedRecord{}, apperrors.NewParseError(StageCategorize, row, err.Error(), nil)
		}
		out.Category = c.dict.Classify(rec.AriaLabel)
		c.hasStarted = true
		c.lastStartTime = at
		c.lastCategory = out.Category

	case domain.EventFixationEnded:
		at, err := rec.AppTimeMillis()
		if err != nil {
			return domain.CategorizedRecord{}, apperrors.NewParseError(StageCategorize, row, err.Error(), nil)
		}
		if !c.hasStarted {
			if c.policy != SequenceTolerant {
				return domain.CategorizedRecord{}, apperrors.NewSequenceError(StageCategorize, row,
					"FixationEnded without a preceding FixationStarted")
			}
			c.warnings++
			c.logger.Warn("FixationEnded without a preceding FixationStarted, using empty category",
				slog.String("stage", StageCategorize),
				slog.Int("row", row))
		}
		span := at - c.lastStartTime
		if span <= 0 {
			c.warnings++
			c.logger.Warn("non-positive fixation time span",
				slog.String("stage", StageCategorize),
				slog.Int("row", row),
				slog.Int64("time_span", span))
		}
		out.Category = c.lastCategory
		out.TimeSpan = &span
	}

	c.number++
	out.Number = c.number
	return out, nil
}

// Warnings returns the number of suspicious rows tolerated so far
func (c *Categorizer) Warnings() int {
	return c.warnings
}

// CategorizeRows is the EventCategorizer stage: filtered rows in, categorized rows out.
func CategorizeRows(ctx context.Context, r io.Reader, w io.Writer, opts Options) (StageStats, error) {
	stats := StageStats{Stage: StageCategorize}
	logger := opts.logger()
	in := newLineReader(r)
	out := newLineWriter(w)
	c := NewCategorizer(opts)

	header, err := in.next()
	if err == io.EOF {
		return stats, apperrors.NewSchemaError(StageCategorize, "input is empty, expected a header line")
	}
	if err != nil {
		return stats, opts.readError(StageCategorize, in.lineNumber(), err)
	}
	if err := expectHeader(StageCategorize, header, domain.FilteredHeader); err != nil {
		return stats, err
	}
	if err := out.write(domain.CategorizedHeader); err != nil {
		return stats, opts.writeError(StageCategorize, err)
	}

	for {
		fields, err := in.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, opts.readError(StageCategorize, in.lineNumber(), err)
		}
		stats.RowsRead++
		if err := checkContext(ctx, stats.RowsRead); err != nil {
			return stats, err
		}

		rec, err := domain.FilteredRecordFromFields(fields)
		if err != nil {
			return stats, apperrors.NewParseError(StageCategorize, in.lineNumber(), err.Error(), nil)
		}
		categorized, err := c.Categorize(rec, in.lineNumber())
		if err != nil {
			return stats, err
		}
		if err := out.writeRow(categorized.Fields()); err != nil {
			return stats, opts.writeError(StageCategorize, err)
		}
	}

	if err := out.flush(); err != nil {
		return stats, opts.writeError(StageCategorize, err)
	}
	stats.RowsWritten = out.rows
	stats.Warnings = c.Warnings()
	logger.Debug("stage complete",
		slog.String("stage", StageCategorize),
		slog.Int("rows_written", stats.RowsWritten),
		slog.Int("warnings", stats.Warnings))
	return stats, nil
}
