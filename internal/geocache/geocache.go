// Package geocache provides a typed in-memory cache keyed by rounded
// geographic coordinates, with entry lifetimes scaled by how precise the
// position fix was: a tight fix means the reading stays representative for
// longer, so it earns a longer TTL.
package geocache

import (
	"sync"
	"time"

	"github.com/corvid-labs/weathervane/internal/geo"
)

// Defaults applied by New for any Options field left at its zero value.
const (
	DefaultBaseTTL            = 10 * time.Minute
	DefaultAccuracyMultiplier = 2.0
	DefaultMinTTL             = time.Minute
	DefaultMaxTTL             = time.Hour
	DefaultKeyToleranceMeters = 50.0
)

// Options tunes TTL computation and the re-keying tolerance.
type Options struct {
	// BaseTTL is the lifetime granted to an entry before accuracy scaling.
	BaseTTL time.Duration

	// AccuracyMultiplier scales the bonus lifetime earned by accurate fixes.
	AccuracyMultiplier float64

	// MinTTL and MaxTTL clamp the computed lifetime.
	MinTTL time.Duration
	MaxTTL time.Duration

	// KeyToleranceMeters bounds how far a requested point may sit from the
	// stored one and still count as the same place. Coordinate rounding
	// already buckets nearby requests together; the tolerance guards the
	// residual drift within a bucket.
	KeyToleranceMeters float64
}

func (o Options) withDefaults() Options {
	if o.BaseTTL <= 0 {
		o.BaseTTL = DefaultBaseTTL
	}
	if o.AccuracyMultiplier <= 0 {
		o.AccuracyMultiplier = DefaultAccuracyMultiplier
	}
	if o.MinTTL <= 0 {
		o.MinTTL = DefaultMinTTL
	}
	if o.MaxTTL <= 0 {
		o.MaxTTL = DefaultMaxTTL
	}
	if o.KeyToleranceMeters <= 0 {
		o.KeyToleranceMeters = DefaultKeyToleranceMeters
	}
	return o
}

// entry records the stored value along with the fix that produced it; the
// accuracy is kept as provenance for the TTL the entry was granted.
type entry[T any] struct {
	value      T
	point      geo.Point
	accuracy   float64
	ttl        time.Duration
	capturedAt time.Time
}

// Cache is a concurrency-safe map of location-keyed values. Expiry is lazy:
// stale entries are removed when a read or a Sweep touches them, never by a
// background timer.
type Cache[T any] struct {
	mu   sync.Mutex
	data map[string]entry[T]
	opts Options

	now func() time.Time
}

// New creates an empty cache. Zero-valued Options fields fall back to the
// package defaults.
func New[T any](opts Options) *Cache[T] {
	return &Cache[T]{
		data: make(map[string]entry[T]),
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

func cacheKey(pt geo.Point, params string) string {
	if params == "" {
		return pt.Key()
	}
	return pt.Key() + "|" + params
}

// ttlFor computes the lifetime for a value captured with the given accuracy.
// Fixes worse than 100m earn no bonus; the result is always clamped to
// [MinTTL, MaxTTL].
func (c *Cache[T]) ttlFor(accuracyMeters float64) time.Duration {
	factor := (100 - accuracyMeters) / 100
	if factor < 0 {
		factor = 0
	}
	ttl := c.opts.BaseTTL + time.Duration(float64(c.opts.BaseTTL)*factor*c.opts.AccuracyMultiplier)
	if ttl < c.opts.MinTTL {
		ttl = c.opts.MinTTL
	}
	if ttl > c.opts.MaxTTL {
		ttl = c.opts.MaxTTL
	}
	return ttl
}

// Get returns the cached value for the point, if a fresh one is stored within
// the key tolerance. Entries found expired or out of tolerance are deleted.
func (c *Cache[T]) Get(pt geo.Point, params string) (T, bool) {
	key := cacheKey(pt, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		var zero T
		return zero, false
	}
	if c.now().Sub(e.capturedAt) >= e.ttl || geo.Distance(pt, e.point) > c.opts.KeyToleranceMeters {
		delete(c.data, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Put stores a value captured at the point with the given position accuracy.
// A later Put for the same key replaces the earlier entry.
func (c *Cache[T]) Put(pt geo.Point, accuracyMeters float64, value T, params string) {
	key := cacheKey(pt, params)
	e := entry[T]{
		value:      value,
		point:      pt,
		accuracy:   accuracyMeters,
		ttl:        c.ttlFor(accuracyMeters),
		capturedAt: c.now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = e
}

// Invalidate removes the entry for the point, if any.
func (c *Cache[T]) Invalidate(pt geo.Point, params string) {
	key := cacheKey(pt, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Sweep removes every expired entry and reports how many were dropped.
func (c *Cache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.data {
		if now.Sub(e.capturedAt) >= e.ttl {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
