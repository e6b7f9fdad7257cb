package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etaanalyzer/internal/operations"
)

func TestRunStoreCRUD(t *testing.T) {
	store := NewRunStore()
	rec := &RunRecord{ID: "a", Status: operations.OperationStatusPending, SubmittedAt: time.Now()}

	require.NoError(t, store.Create(rec))
	assert.True(t, errors.Is(store.Create(rec), ErrRunExists))

	// the stored record is a copy
	rec.Status = operations.OperationStatusFailed
	got, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusPending, got.Status)

	require.NoError(t, store.Update("a", func(r *RunRecord) { r.Status = operations.OperationStatusRunning }))
	got, err = store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusRunning, got.Status)

	assert.True(t, errors.Is(store.Update("missing", func(*RunRecord) {}), ErrRunNotFound))
	_, err = store.Get("missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	require.NoError(t, store.Delete("a"))
	assert.True(t, errors.Is(store.Delete("a"), ErrRunNotFound))
	assert.Equal(t, 0, store.Count())
}

func TestRunStoreList(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewRunStore()
	for i, st := range []operations.OperationStatusValue{
		operations.OperationStatusCompleted,
		operations.OperationStatusFailed,
		operations.OperationStatusCompleted,
	} {
		require.NoError(t, store.Create(&RunRecord{
			ID:          string(rune('a' + i)),
			Status:      st,
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	tests := []struct {
		name   string
		filter RunFilter
		want   []string
	}{
		{name: "all newest first", filter: RunFilter{}, want: []string{"c", "b", "a"}},
		{name: "by status", filter: RunFilter{Status: operations.OperationStatusCompleted}, want: []string{"c", "a"}},
		{name: "since", filter: RunFilter{Since: base.Add(time.Minute)}, want: []string{"c", "b"}},
		{name: "limit", filter: RunFilter{Limit: 1}, want: []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, r := range store.List(tt.filter) {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestRunStorePrune(t *testing.T) {
	store := NewRunStore()
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Create(&RunRecord{ID: "old", Status: operations.OperationStatusCompleted, CompletedAt: &old}))
	require.NoError(t, store.Create(&RunRecord{ID: "running", Status: operations.OperationStatusRunning}))

	assert.Equal(t, 1, store.Prune(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, store.Count())
	_, err := store.Get("running")
	assert.NoError(t, err)
}
