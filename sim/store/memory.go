package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps runs for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]RunRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]RunRecord)}
}

func (s *MemoryStore) Save(_ context.Context, run RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("store.Save: run has no ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return RunRecord{}, fmt.Errorf("store.Get %q: %w", id, ErrNotFound)
	}
	return run, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	runs := make([]RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	newestFirst(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) Close() error { return nil }
