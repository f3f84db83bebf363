// Package cache provides the two caches used by the savings engine: a
// single-slot cache invalidated by an external freshness marker, and a
// content-keyed, versioned memo store for expensive aggregates.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/giygas/ppu-savings/logging"
	"github.com/giygas/ppu-savings/metrics"
)

type freshnessEntry[T any] struct {
	marker int64
	value  T
}

// Freshness caches the result of a zero-argument computation until the
// freshness marker changes (e.g. the max PriceInfo id after a dm+d import).
// Concurrent misses may recompute more than once; the last writer wins. A
// computation that overlaps Invalidate is returned to its caller but not
// stored.
type Freshness[T any] struct {
	name  string
	entry atomic.Pointer[freshnessEntry[T]]

	mu         sync.Mutex
	generation uint64
}

// NewFreshness creates an empty cache. name labels metrics and logs.
func NewFreshness[T any](name string) *Freshness[T] {
	return &Freshness[T]{name: name}
}

// GetOrCompute returns the cached value if markerFn reports the same marker
// as the last successful computation, otherwise it recomputes and stores the
// new value together with the new marker
func (f *Freshness[T]) GetOrCompute(ctx context.Context, markerFn func(context.Context) (int64, error), computeFn func(context.Context) (T, error)) (T, error) {
	var zero T

	marker, err := markerFn(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to read freshness marker for %s: %w", f.name, err)
	}

	if entry := f.entry.Load(); entry != nil && entry.marker == marker {
		metrics.FreshnessCacheTotal.WithLabelValues(f.name, "hit").Inc()
		return entry.value, nil
	}

	metrics.FreshnessCacheTotal.WithLabelValues(f.name, "miss").Inc()
	logging.Debug("Recomputing cached value", "cache", f.name, "marker", marker)

	f.mu.Lock()
	generation := f.generation
	f.mu.Unlock()

	value, err := computeFn(ctx)
	if err != nil {
		return zero, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generation != generation {
		logging.Debug("Discarding value computed before invalidation", "cache", f.name)
		return value, nil
	}
	f.entry.Store(&freshnessEntry[T]{marker: marker, value: value})
	return value, nil
}

// Invalidate drops the stored value and marker unconditionally, along with
// any value still being computed
func (f *Freshness[T]) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.entry.Store(nil)
}

// Marker returns the marker of the cached value, if any
func (f *Freshness[T]) Marker() (int64, bool) {
	if entry := f.entry.Load(); entry != nil {
		return entry.marker, true
	}
	return 0, false
}
