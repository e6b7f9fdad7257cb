package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discovery provides file discovery operations
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

func (d *Discovery) fullPath(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}

// FindCSVFiles finds all CSV files in dir, sorted by name
func (d *Discovery) FindCSVFiles(dir string) ([]FileInfo, error) {
	fullPath := d.fullPath(dir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".csv") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(fullPath, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// FindFilesByPattern finds regular files matching a glob pattern, sorted by path
func (d *Discovery) FindFilesByPattern(pattern string) ([]FileInfo, error) {
	matches, err := filepath.Glob(d.fullPath(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}
	sort.Strings(matches)

	var files []FileInfo
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, FileInfo{
			Path:    match,
			Name:    filepath.Base(match),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}

// ExpandSources turns CLI or API sources into input files. A directory
// contributes its CSV files, a glob its matches, anything else is taken
// as a file path. Duplicates keep their first position.
func (d *Discovery) ExpandSources(sources []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, src := range sources {
		full := d.fullPath(src)
		switch info, err := os.Stat(full); {
		case err == nil && info.IsDir():
			found, err := d.FindCSVFiles(full)
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				add(f.Path)
			}
		case err == nil:
			add(full)
		case strings.ContainsAny(src, "*?["):
			found, err := d.FindFilesByPattern(src)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("pattern %s matched no files", src)
			}
			for _, f := range found {
				add(f.Path)
			}
		default:
			return nil, fmt.Errorf("source %s: %w", src, err)
		}
	}
	return out, nil
}
