package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PartialSuffix marks a file that is still being written or was abandoned
const PartialSuffix = ".partial"

// AtomicFile writes to "<path>.partial" and only appears under its final
// name after Commit. A reader never mistakes an aborted stage for a
// complete one.
type AtomicFile struct {
	path string
	tmp  *os.File
	done bool
}

// CreateAtomic opens the partial file for path, creating parent directories
func CreateAtomic(path string) (*AtomicFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.OpenFile(path+PartialSuffix, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path+PartialSuffix, err)
	}
	return &AtomicFile{path: path, tmp: tmp}, nil
}

// Write implements io.Writer
func (f *AtomicFile) Write(p []byte) (int, error) {
	return f.tmp.Write(p)
}

// Path returns the final path
func (f *AtomicFile) Path() string {
	return f.path
}

// Commit syncs the partial file and renames it over the final path
func (f *AtomicFile) Commit() error {
	if f.done {
		return errors.New("atomic file already finished")
	}
	f.done = true

	if err := f.tmp.Sync(); err != nil {
		f.tmp.Close()
		os.Remove(f.tmp.Name())
		return fmt.Errorf("failed to sync %s: %w", f.tmp.Name(), err)
	}
	if err := f.tmp.Close(); err != nil {
		os.Remove(f.tmp.Name())
		return fmt.Errorf("failed to close %s: %w", f.tmp.Name(), err)
	}
	if err := os.Rename(f.tmp.Name(), f.path); err != nil {
		os.Remove(f.tmp.Name())
		return fmt.Errorf("failed to commit %s: %w", f.path, err)
	}
	return nil
}

// Abort discards the partial file. It is a no-op after Commit, so it can be deferred.
func (f *AtomicFile) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	f.tmp.Close()
	if err := os.Remove(f.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
