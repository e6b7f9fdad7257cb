package dataprocessing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/pkg/contracts/domain"
)

// headerMatcher resolves one target field from a raw header token
type headerMatcher struct {
	field   string
	pattern string
}

// projectionTable lists target fields in priority order. A token is claimed
// by the first pattern it contains, so "Timestamp(App)" is tested before the
// single-letter X and Y patterns could see it.
var projectionTable = []headerMatcher{
	{field: "EventID", pattern: "EventID"},
	{field: "AppTime", pattern: "Timestamp(App)"},
	{field: "ServerTime", pattern: "Timestamp(Server)"},
	{field: "X", pattern: "X"},
	{field: "Y", pattern: "Y"},
	{field: "AriaLabel", pattern: "LeafSideElem(1): aria-label"},
	{field: "LFHF", pattern: "LFHF"},
}

// Projection maps the raw columns onto the seven filtered fields
type Projection struct {
	indices [7]int
	// minWidth is the number of raw columns a data row needs
	minWidth int
}

// ResolveProjection scans header tokens left to right. The first token that
// matches a field wins; later tokens matching the same pattern are ignored.
func ResolveProjection(header []string, policy HeaderPolicy, logger *slog.Logger) (Projection, error) {
	var p Projection
	var resolved [7]bool

	for col, token := range header {
		for i, m := range projectionTable {
			if !strings.Contains(token, m.pattern) {
				continue
			}
			if !resolved[i] {
				p.indices[i] = col
				resolved[i] = true
			}
			break
		}
	}

	var missing []string
	for i, ok := range resolved {
		if !ok {
			missing = append(missing, projectionTable[i].field)
		}
	}
	if len(missing) > 0 {
		if policy != HeaderLenient {
			return Projection{}, apperrors.NewSchemaError(StageProject,
				fmt.Sprintf("raw header has no column for %s", strings.Join(missing, ", "))).
				WithContext("missing", missing)
		}
		if logger != nil {
			logger.Warn("raw header fields not found, defaulting to column 0",
				slog.String("stage", StageProject),
				slog.Any("missing", missing))
		}
	}

	for _, idx := range p.indices {
		if idx+1 > p.minWidth {
			p.minWidth = idx + 1
		}
	}
	return p, nil
}

// Index returns the raw column resolved for a filtered field position
func (p Projection) Index(field int) int {
	return p.indices[field]
}

// Project rebuilds a filtered record from a raw data row
func (p Projection) Project(row []string) (domain.FilteredRecord, error) {
	if len(row) < p.minWidth {
		return domain.FilteredRecord{}, fmt.Errorf("row has %d fields, need at least %d", len(row), p.minWidth)
	}
	fields := make([]string, len(p.indices))
	for i, idx := range p.indices {
		fields[i] = row[idx]
	}
	return domain.FilteredRecordFromFields(fields)
}

// ProjectRows is the RowProjector stage: raw event log in, filtered rows out.
func ProjectRows(ctx context.Context, r io.Reader, w io.Writer, opts Options) (StageStats, error) {
	stats := StageStats{Stage: StageProject}
	logger := opts.logger()
	in := newLineReader(r)
	out := newLineWriter(w)

	header, err := in.next()
	if err == io.EOF {
		return stats, apperrors.NewSchemaError(StageProject, "input is empty, expected a header line")
	}
	if err != nil {
		return stats, opts.readError(StageProject, in.lineNumber(), err)
	}

	projection, err := ResolveProjection(header, opts.HeaderPolicy, logger)
	if err != nil {
		return stats, err
	}
	if err := out.write(domain.FilteredHeader); err != nil {
		return stats, opts.writeError(StageProject, err)
	}

	for {
		row, err := in.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, opts.readError(StageProject, in.lineNumber(), err)
		}
		stats.RowsRead++
		if err := checkContext(ctx, stats.RowsRead); err != nil {
			return stats, err
		}

		rec, err := projection.Project(row)
		if err != nil {
			return stats, apperrors.NewParseError(StageProject, in.lineNumber(), err.Error(), nil)
		}
		if err := out.writeRow(rec.Fields()); err != nil {
			return stats, opts.writeError(StageProject, err)
		}
	}

	if err := out.flush(); err != nil {
		return stats, opts.writeError(StageProject, err)
	}
	stats.RowsWritten = out.rows
	logger.Debug("stage complete",
		slog.String("stage", StageProject),
		slog.Int("rows_read", stats.RowsRead),
		slog.Int("rows_written", stats.RowsWritten))
	return stats, nil
}

const contextCheckInterval = 1024

// checkContext polls ctx every contextCheckInterval rows
func checkContext(ctx context.Context, rows int) error {
	if rows%contextCheckInterval != 0 {
		return nil
	}
	return ctx.Err()
}

// expectHeader fails with a SchemaError unless header matches want exactly
func expectHeader(stage string, header, want []string) error {
	if len(header) != len(want) {
		return apperrors.NewSchemaError(stage,
			fmt.Sprintf("header has %d columns, expected %d", len(header), len(want)))
	}
	for i := range want {
		if header[i] != want[i] {
			return apperrors.NewSchemaError(stage,
				fmt.Sprintf("header column %d is %q, expected %q", i+1, header[i], want[i]))
		}
	}
	return nil
}
