package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "etaanalyzer/internal/errors"
)

// FileValidator preflights run inputs and outputs before any stage starts
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger,
	}
}

// ValidateOutputDirectory ensures the output directory exists or can be
// created, and is writable.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewIOError("", dir, fmt.Errorf("failed to create output directory: %w", err))
	}

	probe, err := os.CreateTemp(dir, ".write_test-*")
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewIOError("", dir, fmt.Errorf("output directory is not writable: %w", err))
	}
	probe.Close()
	os.Remove(probe.Name())

	v.logger.Debug("Output directory validated", slog.String("directory", dir))
	return nil
}

// ValidateSource checks that an input file exists, is a regular file and can
// be opened. Sources without a .csv extension are accepted with a warning;
// ETA exports are sometimes renamed.
func (v *FileValidator) ValidateSource(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("Source does not exist", slog.String("file", path))
		return apperrors.NewNotFoundError(fmt.Sprintf("source %s", path))
	}
	if err != nil {
		return apperrors.NewIOError("", path, err)
	}
	if info.IsDir() {
		return apperrors.NewAppValidationError(fmt.Sprintf("source %s is a directory, not a file", path))
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("Source is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return apperrors.NewIOError("", path, err)
	}
	file.Close()

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".csv" {
		v.logger.Warn("Source does not have a .csv extension",
			slog.String("file", path),
			slog.String("extension", ext))
	}

	v.logger.Debug("Source validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateSources validates every source and returns the first failure
func (v *FileValidator) ValidateSources(paths []string) error {
	for _, p := range paths {
		if err := v.ValidateSource(p); err != nil {
			return err
		}
	}
	return nil
}
