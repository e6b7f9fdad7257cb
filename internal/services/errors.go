package services

import "errors"

// Pipeline service errors
var (
	ErrRunNotFound    = errors.New("run not found")
	ErrRunExists      = errors.New("run already exists")
	ErrRunNotComplete = errors.New("run not complete")
	ErrNoSummary      = errors.New("run produced no summary")
	ErrNoSources      = errors.New("no source files")
	ErrShuttingDown   = errors.New("service is shutting down")
	ErrDuplicateRunID = errors.New("duplicate run identifier in batch")
)
