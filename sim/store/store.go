// Package store archives finished search runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mdi-sim/mdi-sim/sim/search"
	"github.com/mdi-sim/mdi-sim/sim/trace"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// RunRecord is the archived summary of one search run.
type RunRecord struct {
	ID           string
	Strategy     string
	Model        string
	Seed         int64
	StartedAt    time.Time
	Duration     time.Duration
	Dosage       []float64 // best [basal, boluses...]
	BestScore    float64
	Evaluations  int
	CacheHits    int
	Iterations   int
	Reason       string
	Improvements []trace.ImprovementRecord
}

// NewRunRecord summarizes a search result under a fresh ID.
func NewRunRecord(res *search.Result, model string, seed int64, startedAt time.Time, duration time.Duration) RunRecord {
	r := RunRecord{
		ID:          uuid.NewString(),
		Strategy:    res.Strategy,
		Model:       model,
		Seed:        seed,
		StartedAt:   startedAt.UTC(),
		Duration:    duration,
		Dosage:      res.Best.Dosage().Values(),
		BestScore:   res.BestScore,
		Evaluations: res.Evaluations,
		CacheHits:   res.CacheHits,
		Iterations:  res.Iterations,
		Reason:      string(res.Reason),
	}
	if res.Trace != nil {
		r.Improvements = append([]trace.ImprovementRecord(nil), res.Trace.Improvements...)
	}
	return r
}

// Store persists run records.
type Store interface {
	Save(ctx context.Context, run RunRecord) error
	Get(ctx context.Context, id string) (RunRecord, error)
	// List returns up to limit runs, newest first; limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// Store kinds.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

// ValidStoreKinds is the set of recognized store kinds.
var ValidStoreKinds = map[string]bool{"": true, KindMemory: true, KindSQLite: true}

// NewStore opens the store of the given kind. path is only used by sqlite.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if path == "" {
			return nil, fmt.Errorf("sqlite store needs a path")
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// newestFirst orders runs by start time, newest first, then by ID.
func newestFirst(runs []RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
