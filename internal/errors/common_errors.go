package errors

import (
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeSchema     ErrorType = "SCHEMA"
	ErrTypeParsing    ErrorType = "PARSING"
	ErrTypeSequence   ErrorType = "SEQUENCE"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeConfig     ErrorType = "CONFIG"
)

// Sentinels for errors.Is. Any *AppError of the same Type matches.
var (
	ErrSchema     = &AppError{Type: ErrTypeSchema}
	ErrParse      = &AppError{Type: ErrTypeParsing}
	ErrSequence   = &AppError{Type: ErrTypeSequence}
	ErrIO         = &AppError{Type: ErrTypeStorage}
	ErrValidation = &AppError{Type: ErrTypeValidation}
	ErrNotFound   = &AppError{Type: ErrTypeNotFound}
	ErrConfig     = &AppError{Type: ErrTypeConfig}
)

// AppError represents an application-specific error.
// Stage, Row and Path locate pipeline failures; Row is 1-based and 0 when
// the failure is not tied to a data row.
type AppError struct {
	Type    ErrorType
	Message string
	Stage   string
	Row     int
	Path    string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Type)
	if e.Stage != "" {
		fmt.Fprintf(&b, " stage %s", e.Stage)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Message != "" {
		if e.Stage != "" || e.Row > 0 || e.Path != "" {
			b.WriteString(":")
		}
		b.WriteString(" ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by type
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// AtStage sets the originating stage
func (e *AppError) AtStage(stage string) *AppError {
	e.Stage = stage
	return e
}

// AtRow sets the offending row number
func (e *AppError) AtRow(row int) *AppError {
	e.Row = row
	return e
}

// AtPath sets the file the failure refers to
func (e *AppError) AtPath(path string) *AppError {
	e.Path = path
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewSchemaError reports a raw header that does not resolve
func NewSchemaError(stage, message string) *AppError {
	return NewAppError(ErrTypeSchema, message, nil).AtStage(stage)
}

// NewParseError reports a malformed data row
func NewParseError(stage string, row int, message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause).AtStage(stage).AtRow(row)
}

// NewSequenceError reports an event sequence the pipeline cannot process
func NewSequenceError(stage string, row int, message string) *AppError {
	return NewAppError(ErrTypeSequence, message, nil).AtStage(stage).AtRow(row)
}

// NewIOError reports a failure to open, read or write path
func NewIOError(stage, path string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, "i/o failure", cause).AtStage(stage).AtPath(path)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
