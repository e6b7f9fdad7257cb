package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_Constants(t *testing.T) {
	tests := []struct {
		name     string
		errType  ErrorType
		expected string
	}{
		{name: "schema", errType: ErrTypeSchema, expected: "SCHEMA"},
		{name: "parsing", errType: ErrTypeParsing, expected: "PARSING"},
		{name: "sequence", errType: ErrTypeSequence, expected: "SEQUENCE"},
		{name: "storage", errType: ErrTypeStorage, expected: "STORAGE"},
		{name: "validation", errType: ErrTypeValidation, expected: "VALIDATION"},
		{name: "not found", errType: ErrTypeNotFound, expected: "NOT_FOUND"},
		{name: "config", errType: ErrTypeConfig, expected: "CONFIG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.errType))
		})
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name        string
		appError    *AppError
		wantMessage string
	}{
		{
			name:        "bare message",
			appError:    NewConfigError("unknown encoding", nil),
			wantMessage: "[CONFIG] unknown encoding",
		},
		{
			name:        "stage and row",
			appError:    NewParseError("project", 12, "row has 3 fields, need 7", nil),
			wantMessage: "[PARSING] stage project row 12: row has 3 fields, need 7",
		},
		{
			name:        "sequence",
			appError:    NewSequenceError("interpolate", 4, "zero-length observation interval"),
			wantMessage: "[SEQUENCE] stage interpolate row 4: zero-length observation interval",
		},
		{
			name:        "io with path and cause",
			appError:    NewIOError("categorize", "/tmp/x.csv", fmt.Errorf("permission denied")),
			wantMessage: "[STORAGE] stage categorize (/tmp/x.csv): i/o failure: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.appError.Error())
		})
	}
}

func TestAppError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewSequenceError("categorize", 2, "FixationEnded without FixationStarted"))

	assert.True(t, errors.Is(err, ErrSequence))
	assert.False(t, errors.Is(err, ErrParse))
	assert.False(t, errors.Is(err, ErrIO))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "categorize", appErr.Stage)
	assert.Equal(t, 2, appErr.Row)
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewIOError("derive", "out.csv", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestAppError_WithContext(t *testing.T) {
	err := NewSchemaError("project", "missing fields").WithContext("missing", []string{"LFHF"})

	require.NotNil(t, err.Context)
	assert.Equal(t, []string{"LFHF"}, err.Context["missing"])
}
