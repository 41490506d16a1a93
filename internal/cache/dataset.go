package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Dataset lazily loads a value and re-fetches it only after its generation moved
type Dataset[T any] struct {
	name  string
	gens  *Generations
	fetch func(ctx context.Context) (T, error)

	group  singleflight.Group
	value  T
	loaded bool
	seen   uint64
	mu     sync.RWMutex
}

// NewDataset creates a dataset bound to a generation counter
func NewDataset[T any](gens *Generations, name string, fetch func(ctx context.Context) (T, error)) *Dataset[T] {
	return &Dataset[T]{name: name, gens: gens, fetch: fetch}
}

// Name returns the dataset name
func (d *Dataset[T]) Name() string {
	return d.name
}

// Get returns the cached value, fetching when it was never loaded or is stale.
// Concurrent callers share a single fetch.
func (d *Dataset[T]) Get(ctx context.Context) (T, error) {
	d.mu.RLock()
	if d.loaded && d.gens.Fresh(d.name, d.seen) {
		v := d.value
		d.mu.RUnlock()
		return v, nil
	}
	d.mu.RUnlock()

	v, err, _ := d.group.Do(d.name, func() (interface{}, error) {
		gen := d.gens.Current(d.name)
		value, err := d.fetch(ctx)
		if err != nil {
			return value, err
		}
		d.mu.Lock()
		d.value = value
		d.loaded = true
		d.seen = gen
		d.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Stale reports whether the next Get will fetch
func (d *Dataset[T]) Stale() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.loaded || !d.gens.Fresh(d.name, d.seen)
}
