package dataprocessing

import (
	"fmt"
	"log/slog"
)

// Stage names used in errors, logs and metrics
const (
	StageProject     = "project"
	StageCategorize  = "categorize"
	StageInterpolate = "interpolate"
	StageDerive      = "derive"
	StageSummarize   = "summarize"
)

// HeaderPolicy decides what happens when a raw header lacks a target field
type HeaderPolicy string

const (
	// HeaderStrict fails the run with a SchemaError
	HeaderStrict HeaderPolicy = "strict"
	// HeaderLenient maps the missing field to raw column 0 and logs a warning
	HeaderLenient HeaderPolicy = "lenient"
)

// SequencePolicy decides what happens on an event sequence the pipeline cannot honour
type SequencePolicy string

const (
	// SequenceStrict fails the run with a SequenceError
	SequenceStrict SequencePolicy = "strict"
	// SequenceTolerant logs the anomaly and continues with the carried state
	SequenceTolerant SequencePolicy = "tolerant"
)

// ParseHeaderPolicy validates a header policy name. Empty means strict.
func ParseHeaderPolicy(s string) (HeaderPolicy, error) {
	switch HeaderPolicy(s) {
	case "", HeaderStrict:
		return HeaderStrict, nil
	case HeaderLenient:
		return HeaderLenient, nil
	}
	return "", fmt.Errorf("unknown header policy %q", s)
}

// ParseSequencePolicy validates a sequence policy name. Empty means strict.
func ParseSequencePolicy(s string) (SequencePolicy, error) {
	switch SequencePolicy(s) {
	case "", SequenceStrict:
		return SequenceStrict, nil
	case SequenceTolerant:
		return SequenceTolerant, nil
	}
	return "", fmt.Errorf("unknown sequence policy %q", s)
}

// Options configures the four stages
type Options struct {
	// Dictionary classifies aria-labels. Nil uses DefaultDictionary.
	Dictionary *Dictionary

	HeaderPolicy   HeaderPolicy
	SequencePolicy SequencePolicy

	// WriteLFHFComputed keeps observation rows in the interpolated output,
	// each carrying its own value.
	WriteLFHFComputed bool

	// InputPath and OutputPath name the streams in I/O and decoding errors.
	// They stay empty when a stage runs over in-memory readers.
	InputPath  string
	OutputPath string

	Logger *slog.Logger
}

// DefaultOptions returns strict options with the built-in dictionary
func DefaultOptions() Options {
	return Options{
		Dictionary:     DefaultDictionary(),
		HeaderPolicy:   HeaderStrict,
		SequencePolicy: SequenceStrict,
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) dictionary() *Dictionary {
	if o.Dictionary != nil {
		return o.Dictionary
	}
	return DefaultDictionary()
}

// Categories returns the dictionary in effect
func (o Options) Categories() *Dictionary {
	return o.dictionary()
}

// StageStats summarizes one stage pass
type StageStats struct {
	Stage       string `json:"stage"`
	RowsRead    int    `json:"rows_read"`
	RowsWritten int    `json:"rows_written"`
	// RowsDropped counts input rows that never reached the output
	RowsDropped int `json:"rows_dropped"`
	// Warnings counts suspicious rows that were tolerated
	Warnings int `json:"warnings"`
}
