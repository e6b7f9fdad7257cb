package files

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicFile_Commit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "out.csv")

	f, err := CreateAtomic(path)
	require.NoError(t, err)
	_, err = io.WriteString(f, "a,b\n")
	require.NoError(t, err)

	assert.NoFileExists(t, path)
	assert.FileExists(t, path+PartialSuffix)

	require.NoError(t, f.Commit())
	assert.NoFileExists(t, path+PartialSuffix)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(content))

	assert.NoError(t, f.Abort(), "abort after commit is a no-op")
	assert.FileExists(t, path)
	assert.Error(t, f.Commit())
}

func TestAtomicFile_Abort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	f, err := CreateAtomic(path)
	require.NoError(t, err)
	_, err = io.WriteString(f, "partial")
	require.NoError(t, err)

	require.NoError(t, f.Abort())
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+PartialSuffix)
}

func TestAtomicFile_AbortKeepsPreviousCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	f, err := CreateAtomic(path)
	require.NoError(t, err)
	require.NoError(t, f.Abort())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(content))
}

func TestRunLayout(t *testing.T) {
	layout, err := NewRunLayout("csvout", "20240102030405")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("csvout", "20240102030405"), layout.Dir())
	assert.Equal(t,
		filepath.Join("csvout", "20240102030405", "20240102030405_step_1_filtered_rows.csv"),
		layout.Path(ArtifactFiltered))
	assert.Equal(t,
		filepath.Join("csvout", "20240102030405", "20240102030405_step_4_processed_lfhf.csv"),
		layout.Path(ArtifactProcessed))
	assert.Len(t, StageArtifacts, 4)
}

func TestValidateRunID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "20240102030405"},
		{id: "subject-07_session.2"},
		{id: "", wantErr: true},
		{id: "../etc", wantErr: true},
		{id: "a/b", wantErr: true},
		{id: ".hidden", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateRunID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultRunID(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "20240309140507", DefaultRunID(at))
}
