package files

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_TextRoundTrip(t *testing.T) {
	m := NewManager(t.TempDir())

	out, err := m.CreateText("run/out.csv", ShiftJIS)
	require.NoError(t, err)
	_, err = io.WriteString(out, "Category\n01:Caprese カプレーゼ\n")
	require.NoError(t, err)
	require.NoError(t, out.Commit())

	assert.FileExists(t, filepath.Join(m.BaseDir(), "run", "out.csv"))
	assert.NoFileExists(t, filepath.Join(m.BaseDir(), "run", "out.csv"+PartialSuffix))

	in, err := m.OpenText("run/out.csv", ShiftJIS)
	require.NoError(t, err)
	defer in.Close()
	text, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, "Category\n01:Caprese カプレーゼ\n", string(text))
}

func TestManager_TextAbort(t *testing.T) {
	m := NewManager(t.TempDir())

	out, err := m.CreateText("out.csv", UTF8)
	require.NoError(t, err)
	_, err = io.WriteString(out, "half a row")
	require.NoError(t, err)
	require.NoError(t, out.Abort())

	assert.NoFileExists(t, filepath.Join(m.BaseDir(), "out.csv"))
	assert.NoFileExists(t, filepath.Join(m.BaseDir(), "out.csv"+PartialSuffix))
}

func TestManager_RemovePartials(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base)
	require.NoError(t, os.MkdirAll(filepath.Join(base, "run"), 0755))

	for _, name := range []string{"a.csv.partial", "b.csv.partial", "c.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(base, "run", name), []byte("x"), 0644))
	}

	removed, err := m.RemovePartials("run")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.FileExists(t, filepath.Join(base, "run", "c.csv"))

	removed, err = m.RemovePartials("missing")
	require.NoError(t, err)
	assert.Zero(t, removed)
}
