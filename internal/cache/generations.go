// Package cache tracks staleness of downstream datasets with generation
// counters. Writers bump a dataset's generation; readers compare the
// generation they loaded at with the current one and re-fetch once.
package cache

import (
	"sync"
	"sync/atomic"
)

// Well-known dataset names
const (
	DatasetSessions = "sessions"
	DatasetTasks    = "tasks"
	DatasetBackups  = "backups"
)

// Generations holds one counter per dataset
type Generations struct {
	counters map[string]*atomic.Uint64
	mu       sync.RWMutex
}

// NewGenerations creates an empty registry
func NewGenerations() *Generations {
	return &Generations{counters: make(map[string]*atomic.Uint64)}
}

func (g *Generations) counter(name string) *atomic.Uint64 {
	g.mu.RLock()
	c, ok := g.counters[name]
	g.mu.RUnlock()
	if ok {
		return c
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.counters[name]; ok {
		return c
	}
	c = new(atomic.Uint64)
	g.counters[name] = c
	return c
}

// Current returns the dataset's generation
func (g *Generations) Current(name string) uint64 {
	return g.counter(name).Load()
}

// Invalidate marks the dataset stale and returns the new generation
func (g *Generations) Invalidate(name string) uint64 {
	return g.counter(name).Add(1)
}

// Fresh reports whether data loaded at generation seen is still current
func (g *Generations) Fresh(name string, seen uint64) bool {
	return g.Current(name) == seen
}
