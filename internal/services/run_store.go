package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"etaanalyzer/internal/exporter"
	"etaanalyzer/internal/operations"
)

// RunRecord is what the service remembers about a submitted run
type RunRecord struct {
	ID          string                          `json:"id"`
	Source      string                          `json:"source"`
	Dir         string                          `json:"dir"`
	Status      operations.OperationStatusValue `json:"status"`
	SubmittedAt time.Time                       `json:"submitted_at"`
	StartedAt   *time.Time                      `json:"started_at,omitempty"`
	CompletedAt *time.Time                      `json:"completed_at,omitempty"`
	Manifest    *operations.RunManifest         `json:"manifest,omitempty"`
	Summary     *exporter.CategorySummary       `json:"-"`
	Error       string                          `json:"error,omitempty"`
}

// Finished reports whether the run reached a terminal status
func (r *RunRecord) Finished() bool {
	switch r.Status {
	case operations.OperationStatusCompleted, operations.OperationStatusFailed, operations.OperationStatusCancelled:
		return true
	}
	return false
}

// RunFilter narrows List results
type RunFilter struct {
	Status operations.OperationStatusValue
	Since  time.Time
	Limit  int
}

// RunStore is an in-memory store of runs. Records are copied on the way in
// and out so callers never share state with the store.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

// NewRunStore creates an empty store
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*RunRecord)}
}

// Create adds a new run
func (s *RunStore) Create(rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrRunExists, rec.ID)
	}
	c := *rec
	s.runs[rec.ID] = &c
	return nil
}

// Get retrieves a copy of a run
func (s *RunStore) Get(id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	c := *rec
	return &c, nil
}

// Update applies fn to the stored run under the store lock
func (s *RunStore) Update(id string, fn func(*RunRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.runs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	fn(rec)
	return nil
}

// List returns runs matching the filter, newest first
func (s *RunStore) List(filter RunFilter) []*RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && rec.SubmittedAt.Before(filter.Since) {
			continue
		}
		c := *rec
		result = append(result, &c)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].SubmittedAt.After(result[j].SubmittedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

// Delete removes a run
func (s *RunStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	delete(s.runs, id)
	return nil
}

// Prune removes finished runs that completed before cutoff
func (s *RunStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.runs {
		if rec.Finished() && rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored runs
func (s *RunStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
