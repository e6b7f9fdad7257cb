package dataprocessing

import (
	"context"
	"io"

	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/pkg/contracts/domain"
)

// ReadElements streams a stage-4 file, calling fn for every row in order.
// stage names the consumer in returned errors. It returns the number of rows read.
func ReadElements(ctx context.Context, r io.Reader, stage string, fn func(domain.ElementRecord) error) (int, error) {
	in := newLineReader(r)

	header, err := in.next()
	if err == io.EOF {
		return 0, apperrors.NewSchemaError(stage, "input is empty, expected a header line")
	}
	if err != nil {
		return 0, readError(stage, "", in.lineNumber(), err)
	}
	if err := expectHeader(stage, header, domain.ElementHeader); err != nil {
		return 0, err
	}

	rows := 0
	for {
		fields, err := in.next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, readError(stage, "", in.lineNumber(), err)
		}
		rows++
		if err := checkContext(ctx, rows); err != nil {
			return rows, err
		}

		rec, err := domain.ParseElementFields(fields)
		if err != nil {
			return rows, apperrors.NewParseError(stage, in.lineNumber(), err.Error(), nil)
		}
		if err := fn(rec); err != nil {
			return rows, err
		}
	}
}
