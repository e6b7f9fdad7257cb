package files

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Manager provides file operations rooted at a base directory
type Manager struct {
	baseDir string
}

// NewManager creates a manager. Relative paths resolve against baseDir.
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// BaseDir returns the directory relative paths resolve against
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// OpenText opens a file and decodes it from enc into UTF-8
func (m *Manager) OpenText(path string, enc Encoding) (io.ReadCloser, error) {
	f, err := os.Open(m.resolvePath(path))
	if err != nil {
		return nil, err
	}
	return &decodedFile{Reader: NewReader(f, enc), file: f}, nil
}

type decodedFile struct {
	io.Reader
	file *os.File
}

func (d *decodedFile) Close() error {
	return d.file.Close()
}

// TextFile is an atomically committed file that encodes UTF-8 input
type TextFile struct {
	atomic  *AtomicFile
	encoder io.WriteCloser
}

// CreateText opens an atomic file whose content is written in enc
func (m *Manager) CreateText(path string, enc Encoding) (*TextFile, error) {
	af, err := CreateAtomic(m.resolvePath(path))
	if err != nil {
		return nil, err
	}
	return &TextFile{atomic: af, encoder: NewWriter(af, enc)}, nil
}

// Write implements io.Writer
func (t *TextFile) Write(p []byte) (int, error) {
	return t.encoder.Write(p)
}

// Path returns the final path
func (t *TextFile) Path() string {
	return t.atomic.Path()
}

// Commit flushes the encoder and publishes the file
func (t *TextFile) Commit() error {
	if err := t.encoder.Close(); err != nil {
		t.atomic.Abort()
		return fmt.Errorf("failed to encode %s: %w", t.atomic.Path(), err)
	}
	return t.atomic.Commit()
}

// Abort discards the file; safe to defer after Commit
func (t *TextFile) Abort() error {
	return t.atomic.Abort()
}

// RemovePartials deletes leftover "*.partial" files in dir
func (m *Manager) RemovePartials(dir string) (int, error) {
	fullPath := m.resolvePath(dir)
	entries, err := os.ReadDir(fullPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PartialSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(fullPath, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Removed stale partial files",
			slog.String("dir", fullPath),
			slog.Int("count", removed))
	}
	return removed, nil
}

// resolvePath resolves a path relative to the base directory
func (m *Manager) resolvePath(path string) string {
	if filepath.IsAbs(path) || m.baseDir == "" {
		return path
	}
	return filepath.Join(m.baseDir, path)
}
