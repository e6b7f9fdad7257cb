package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etaanalyzer/internal/config"
	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/internal/files"
	"etaanalyzer/internal/operations"
)

const sessionCSV = "EventID,Timestamp(App),Timestamp(Server),Gaze X,Gaze Y,LeafSideElem(1): aria-label,LFHF\n" +
	"2,1000,5000,0,0,,1.0\n" +
	"0,1600,5600,30,40,カプレーゼ 800円,\n" +
	"1,1900,5900,30,40,,\n" +
	"2,2000,6000,0,0,,3.0\n"

func testPipelineConfig(dir string) config.PipelineConfig {
	cfg := config.Default().Pipeline
	cfg.OutputDir = filepath.Join(dir, "csvout")
	cfg.InputEncoding = "utf_8"
	cfg.OutputEncoding = "utf_8"
	return cfg
}

func newTestService(t *testing.T, cfg config.PipelineConfig) *PipelineService {
	t.Helper()
	svc, err := NewPipelineService(cfg, nil, nil, quietLogger())
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local) }
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPipelineService_Run(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, testPipelineConfig(dir))
	src := writeSource(t, dir, "session.csv", sessionCSV)

	res, err := svc.Run(context.Background(), RunRequest{Source: src})
	require.NoError(t, err)

	assert.Equal(t, "20240501093000", res.RunID, "the default id is the local timestamp")
	assert.Equal(t, operations.OperationStatusCompleted, res.Status)
	assert.Equal(t, filepath.Join(dir, "csvout", "20240501093000"), res.Dir)
	require.NotNil(t, res.Summary)
	require.NotNil(t, res.Manifest)

	layout := files.RunLayout{OutputDir: filepath.Join(dir, "csvout"), RunID: res.RunID}
	assert.FileExists(t, layout.Path(files.ArtifactProcessed))
	assert.FileExists(t, layout.Path(files.ArtifactManifest))
}

func TestPipelineService_RequestOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := testPipelineConfig(dir)
	svc := newTestService(t, cfg)
	src := writeSource(t, dir, "session.csv", sessionCSV)

	keep := true
	res, err := svc.Run(context.Background(), RunRequest{
		Source:            src,
		Identifier:        "custom",
		WriteLFHFComputed: &keep,
		SkipWorkbook:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "custom", res.RunID)

	layout := files.RunLayout{OutputDir: cfg.OutputDir, RunID: "custom"}
	data, err := os.ReadFile(layout.Path(files.ArtifactInterpolated))
	require.NoError(t, err)
	assert.Contains(t, string(data), "LFHFComputed", "observation rows are retained")
	assert.NoFileExists(t, layout.Path(files.ArtifactWorkbook))
}

func TestPipelineService_Validation(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, testPipelineConfig(dir))

	tests := []struct {
		name string
		req  RunRequest
	}{
		{name: "missing source", req: RunRequest{}},
		{name: "bad encoding", req: RunRequest{Source: "a.csv", InputEncoding: "latin1"}},
		{name: "bad header policy", req: RunRequest{Source: "a.csv", HeaderPolicy: "loose"}},
		{name: "id escapes directory", req: RunRequest{Source: "a.csv", Identifier: "../x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), tt.req)
			assert.Error(t, err)
			_, err = svc.Submit(tt.req)
			assert.Error(t, err)
		})
	}
}

func TestPipelineService_BadDictionary(t *testing.T) {
	dir := t.TempDir()
	cfg := testPipelineConfig(dir)
	cfg.CategoriesFile = filepath.Join(dir, "missing.yaml")

	_, err := NewPipelineService(cfg, nil, nil, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConfig))
}

func TestPipelineService_RunBatch(t *testing.T) {
	dir := t.TempDir()
	cfg := testPipelineConfig(dir)
	svc := newTestService(t, cfg)

	good := writeSource(t, dir, "alice.csv", sessionCSV)
	other := writeSource(t, dir, "bob.csv", sessionCSV)
	bad := writeSource(t, dir, "broken.csv", "EventID,LFHF\n1,2\n")

	reqs := BatchRequests(RunRequest{Identifier: "batch"}, []string{good, other, bad}, svc.now())
	results, err := svc.RunBatch(context.Background(), reqs, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.csv")
	require.Len(t, results, 3)

	assert.Equal(t, "batch_alice", results[0].RunID)
	assert.Equal(t, operations.OperationStatusCompleted, results[0].Status)
	assert.Equal(t, "batch_bob", results[1].RunID)
	assert.Equal(t, operations.OperationStatusCompleted, results[1].Status)
	assert.Equal(t, operations.OperationStatusFailed, results[2].Status)
	assert.True(t, errors.Is(results[2].Error, apperrors.ErrSchema))

	_, err = svc.RunBatch(context.Background(), nil, 1)
	assert.True(t, errors.Is(err, ErrNoSources))
}

func TestPipelineService_RunBatchSameStem(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, testPipelineConfig(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0755))
	first := writeSource(t, filepath.Join(dir, "a"), "session.csv", sessionCSV)
	second := writeSource(t, filepath.Join(dir, "b"), "session.csv", sessionCSV)

	reqs := BatchRequests(RunRequest{Identifier: "s"}, []string{first, second}, svc.now())
	results, err := svc.RunBatch(context.Background(), reqs, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotEqual(t, results[0].Dir, results[1].Dir)

	for _, res := range results {
		layout := files.RunLayout{OutputDir: filepath.Join(dir, "csvout"), RunID: res.RunID}
		assert.FileExists(t, layout.Path(files.ArtifactProcessed))
	}

	dup := []RunRequest{{Source: first, Identifier: "same"}, {Source: second, Identifier: "same"}}
	_, err = svc.RunBatch(context.Background(), dup, 2)
	assert.True(t, errors.Is(err, ErrDuplicateRunID))
}

func TestBatchRequests(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)

	single := BatchRequests(RunRequest{}, []string{"/data/a.csv"}, now)
	require.Len(t, single, 1)
	assert.Equal(t, "20240501093000", single[0].Identifier)

	multi := BatchRequests(RunRequest{Identifier: "x"}, []string{"/data/p 1.csv", "/data/ｐ2.csv"}, now)
	assert.Equal(t, "x_p_1", multi[0].Identifier)
	assert.True(t, strings.HasPrefix(multi[1].Identifier, "x_"))
	assert.NoError(t, files.ValidateRunID(multi[1].Identifier))
}

func TestBatchRequests_UniqueIdentifiers(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)

	tests := []struct {
		name    string
		sources []string
		want    []string
	}{
		{
			name:    "same stem in different directories",
			sources: []string{"a/x.csv", "b/x.csv", "c/x.csv"},
			want:    []string{"s_x", "s_x_2", "s_x_3"},
		},
		{
			name:    "non-ASCII stems",
			sources: []string{"in/山田.csv", "in/田中.csv"},
			want:    []string{"s___", "s____2"},
		},
		{
			name:    "suffix already used by a real stem",
			sources: []string{"a/x.csv", "a/x_2.csv", "b/x.csv"},
			want:    []string{"s_x", "s_x_2", "s_x_3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs := BatchRequests(RunRequest{Identifier: "s"}, tt.sources, now)
			require.Len(t, reqs, len(tt.want))

			seen := make(map[string]bool)
			for i, req := range reqs {
				assert.Equal(t, tt.want[i], req.Identifier)
				assert.Equal(t, tt.sources[i], req.Source)
				assert.NoError(t, files.ValidateRunID(req.Identifier))
				assert.False(t, seen[req.Identifier], "duplicate id %s", req.Identifier)
				seen[req.Identifier] = true
			}
		})
	}
}

func TestPipelineService_Submit(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, testPipelineConfig(dir))
	src := writeSource(t, dir, "session.csv", sessionCSV)

	id, err := svc.Submit(RunRequest{Source: src})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		rec, err := svc.GetRun(id)
		return err == nil && rec.Finished()
	}, 10*time.Second, 10*time.Millisecond)

	rec, err := svc.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCompleted, rec.Status)
	assert.NotNil(t, rec.StartedAt)
	assert.NotNil(t, rec.Manifest)

	summary, err := svc.Summary(id)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.Categories)

	assert.Len(t, svc.ListRuns(RunFilter{}), 1)

	_, err = svc.Submit(RunRequest{Source: src, Identifier: id})
	assert.True(t, errors.Is(err, ErrRunExists))

	_, err = svc.Summary("nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestPipelineService_SubmitFailure(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, testPipelineConfig(dir))

	id, err := svc.Submit(RunRequest{Source: filepath.Join(dir, "missing.csv")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := svc.GetRun(id)
		return err == nil && rec.Finished()
	}, 10*time.Second, 10*time.Millisecond)

	rec, err := svc.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)

	_, err = svc.Summary(id)
	assert.True(t, errors.Is(err, ErrRunNotComplete))
}

func TestPipelineService_Shutdown(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, testPipelineConfig(dir))
	require.NoError(t, svc.Shutdown(context.Background()))

	_, err := svc.Submit(RunRequest{Source: "a.csv"})
	assert.True(t, errors.Is(err, ErrShuttingDown))
}

func TestPipelineService_Prune(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, testPipelineConfig(dir))
	src := writeSource(t, dir, "session.csv", sessionCSV)

	id, err := svc.Submit(RunRequest{Source: src})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		rec, err := svc.GetRun(id)
		return err == nil && rec.Finished()
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, svc.Prune(context.Background(), time.Hour), "recent runs are kept")

	later := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return later }
	assert.Equal(t, 1, svc.Prune(context.Background(), time.Hour))

	_, err = svc.GetRun(id)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
