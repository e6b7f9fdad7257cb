package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("EventID\n"), 0644))
}

func TestDiscovery_FindCSVFiles(t *testing.T) {
	base := t.TempDir()
	touch(t, filepath.Join(base, "in", "b.csv"))
	touch(t, filepath.Join(base, "in", "a.CSV"))
	touch(t, filepath.Join(base, "in", "notes.txt"))
	touch(t, filepath.Join(base, "in", "nested", "c.csv"))

	found, err := NewDiscovery(base).FindCSVFiles("in")
	require.NoError(t, err)

	require.Len(t, found, 2)
	assert.Equal(t, "a.CSV", found[0].Name)
	assert.Equal(t, "b.csv", found[1].Name)

	_, err = NewDiscovery(base).FindCSVFiles("missing")
	assert.Error(t, err)
}

func TestDiscovery_ExpandSources(t *testing.T) {
	base := t.TempDir()
	touch(t, filepath.Join(base, "dir", "s1.csv"))
	touch(t, filepath.Join(base, "dir", "s2.csv"))
	touch(t, filepath.Join(base, "single.csv"))
	touch(t, filepath.Join(base, "glob", "x_1.csv"))
	touch(t, filepath.Join(base, "glob", "x_2.csv"))
	d := NewDiscovery(base)

	tests := []struct {
		name    string
		sources []string
		want    []string
		wantErr bool
	}{
		{
			name:    "file",
			sources: []string{"single.csv"},
			want:    []string{filepath.Join(base, "single.csv")},
		},
		{
			name:    "directory",
			sources: []string{"dir"},
			want:    []string{filepath.Join(base, "dir", "s1.csv"), filepath.Join(base, "dir", "s2.csv")},
		},
		{
			name:    "glob and duplicate",
			sources: []string{"glob/x_*.csv", filepath.Join(base, "glob", "x_1.csv")},
			want:    []string{filepath.Join(base, "glob", "x_1.csv"), filepath.Join(base, "glob", "x_2.csv")},
		},
		{name: "missing file", sources: []string{"nope.csv"}, wantErr: true},
		{name: "empty glob", sources: []string{"glob/y_*.csv"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.ExpandSources(tt.sources)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscovery_FindFilesByPattern(t *testing.T) {
	base := t.TempDir()
	touch(t, filepath.Join(base, "in", "s_2.csv"))
	touch(t, filepath.Join(base, "in", "s_1.csv"))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "in", "s_dir.csv"), 0755))

	found, err := NewDiscovery(base).FindFilesByPattern("in/s_*.csv")
	require.NoError(t, err)

	require.Len(t, found, 2, "directories are not sources")
	assert.Equal(t, "s_1.csv", found[0].Name)
	assert.Equal(t, filepath.Join(base, "in", "s_2.csv"), found[1].Path)

	_, err = NewDiscovery(base).FindFilesByPattern("in/[")
	assert.Error(t, err)
}
