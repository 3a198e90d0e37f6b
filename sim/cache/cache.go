// Package cache memoizes objective scores by dosage vector.
//
// Simulation dominates the cost of a search, and every strategy revisits
// amounts: local search proposes clamped neighbours, evolution re-creates
// vectors through elitism and crossover. Concurrent requests for the same
// vector are collapsed into one computation; failed computations are not
// stored, so a later request retries them.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/mdi-sim/mdi-sim/sim"
)

// entry keeps the vector next to its score so every hit can be checked
// against the vector that produced it.
type entry struct {
	vector sim.DosageVector
	score  float64
}

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Cache is safe for concurrent use. The zero value is not usable; call New.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Get returns the stored score for an amount-equal vector.
func (c *Cache) Get(v sim.DosageVector) (float64, bool) {
	key := v.Key()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if !e.vector.Equal(v) {
		panic(fmt.Sprintf("cache: key %q maps to %s, looked up %s", key, e.vector, v))
	}
	return e.score, true
}

// GetOrCompute returns the stored score for v, or runs compute, stores its
// result and returns it. Concurrent callers with an equal vector share one
// compute call. hit reports whether the score came from the cache, including
// scores shared from a computation another caller started.
func (c *Cache) GetOrCompute(v sim.DosageVector, compute func() (float64, error)) (score float64, hit bool, err error) {
	if score, ok := c.Get(v); ok {
		c.hits.Add(1)
		return score, true, nil
	}

	key := v.Key()
	owned := false
	result, err, _ := c.group.Do(key, func() (any, error) {
		owned = true
		// another caller may have stored it between Get and Do
		if score, ok := c.Get(v); ok {
			owned = false
			return score, nil
		}
		score, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry{vector: sim.DosageVector{Basal: v.Basal, Boluses: append([]float64(nil), v.Boluses...)}, score: score}
		c.mu.Unlock()
		return score, nil
	})
	if err != nil {
		return 0, false, err
	}
	if owned {
		c.misses.Add(1)
	} else {
		c.hits.Add(1)
	}
	return result.(float64), !owned, nil
}

// Len is the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.Len()}
}
