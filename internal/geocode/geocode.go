// Package geocode resolves city names to coordinates for the convenience
// lookup paths (query by city, prefetch location lists). Results are
// memoized: city coordinates do not move, so one successful lookup per
// process is enough.
package geocode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kelvins/geocoder"

	"github.com/corvid-labs/weathervane/internal/fault"
	"github.com/corvid-labs/weathervane/internal/geo"
)

// Place identifies a city for forward geocoding.
type Place struct {
	City    string
	Country string
}

func (p Place) String() string {
	if p.Country == "" {
		return p.City
	}
	return p.City + "," + p.Country
}

func (p Place) key() string {
	return strings.ToLower(p.String())
}

// Resolver turns a place into coordinates.
type Resolver interface {
	Resolve(ctx context.Context, place Place) (geo.Point, error)
}

// GoogleResolver adapts the kelvins geocoder, a Google Geocoding API client.
// The underlying client keys itself through a package variable, so construct
// exactly one per process.
type GoogleResolver struct{}

// NewGoogleResolver installs the API key and returns the adapter.
func NewGoogleResolver(apiKey string) *GoogleResolver {
	geocoder.ApiKey = apiKey
	return &GoogleResolver{}
}

// Resolve performs a single forward-geocoding call.
func (r *GoogleResolver) Resolve(ctx context.Context, place Place) (geo.Point, error) {
	if place.City == "" {
		return geo.Point{}, &fault.Error{Kind: fault.KindInvalidRequest, Message: "geocode: city required"}
	}
	if err := ctx.Err(); err != nil {
		return geo.Point{}, err
	}

	loc, err := geocoder.Geocoding(geocoder.Address{City: place.City, Country: place.Country})
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocode %s: %w", place, err)
	}
	return geo.Point{Lat: loc.Latitude, Lon: loc.Longitude}, nil
}

// CachingResolver memoizes successful lookups from an inner resolver and
// retries transient failures with exponential backoff. Failures are never
// cached. Concurrent misses for the same place may each hit the network;
// they converge on the same value.
type CachingResolver struct {
	inner Resolver

	mu   sync.Mutex
	seen map[string]geo.Point
}

// WithCache wraps a resolver with memoization and lookup retry.
func WithCache(inner Resolver) *CachingResolver {
	return &CachingResolver{
		inner: inner,
		seen:  make(map[string]geo.Point),
	}
}

// Resolve returns the memoized coordinates when available, otherwise asks the
// inner resolver, retrying transient failures.
func (r *CachingResolver) Resolve(ctx context.Context, place Place) (geo.Point, error) {
	key := place.key()

	r.mu.Lock()
	pt, ok := r.seen[key]
	r.mu.Unlock()
	if ok {
		return pt, nil
	}

	err := retryLookup(ctx, func() error {
		var err error
		pt, err = r.inner.Resolve(ctx, place)
		return err
	})
	if err != nil {
		return geo.Point{}, err
	}

	r.mu.Lock()
	r.seen[key] = pt
	r.mu.Unlock()
	return pt, nil
}

// retryLookup wraps a lookup with bounded exponential backoff. Transient
// failures (per fault.Classify) are retried; anything else stops immediately.
func retryLookup(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 8 * time.Second
	b.RandomizationFactor = 0.1

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if classified := fault.Classify(err); !classified.Retryable {
			return backoff.Permanent(classified)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
