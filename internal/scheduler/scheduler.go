package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/corvid-labs/weathervane/internal/geocode"
	"github.com/corvid-labs/weathervane/internal/weather"
)

// prefetchAccuracyMeters is the fix quality reported for warm-up fetches.
// Configured places are exact points, not estimated device fixes, so they
// earn the long end of the cache lifetime scale.
const prefetchAccuracyMeters = 0

// prefetchTimeout bounds one place's warm-up fetch, geocoding included.
const prefetchTimeout = 30 * time.Second

// Scheduler owns the background jobs: periodic cache sweeps and cache
// warming for configured places.
type Scheduler struct {
	scheduler     *gocron.Scheduler
	service       *weather.Service
	resolver      geocode.Resolver
	places        []geocode.Place
	sweepEvery    time.Duration
	prefetchEvery time.Duration
	log           *slog.Logger
}

// Options wires a Scheduler. A zero interval disables the corresponding job;
// prefetching also needs a resolver and at least one place.
type Options struct {
	Service          *weather.Service
	Resolver         geocode.Resolver
	Places           []geocode.Place
	SweepInterval    time.Duration
	PrefetchInterval time.Duration
	Logger           *slog.Logger
}

// New creates a Scheduler. Call Start to begin running jobs.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler:     gocron.NewScheduler(time.UTC),
		service:       opts.Service,
		resolver:      opts.Resolver,
		places:        opts.Places,
		sweepEvery:    opts.SweepInterval,
		prefetchEvery: opts.PrefetchInterval,
		log:           logger,
	}
}

// Start registers the enabled jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	scheduled := 0

	if s.sweepEvery > 0 {
		if _, err := s.scheduler.Every(s.sweepEvery).Do(s.sweep); err != nil {
			return err
		}
		scheduled++
	}

	if s.prefetchEvery > 0 && s.resolver != nil && len(s.places) > 0 {
		if _, err := s.scheduler.Every(s.prefetchEvery).Do(s.prefetch); err != nil {
			return err
		}
		scheduled++
	}

	if scheduled == 0 {
		s.log.Info("scheduler has nothing to run")
		return nil
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) sweep() {
	current, forecast := s.service.SweepCaches()
	s.log.Debug("cache sweep completed", "current", current, "forecast", forecast)
}

// prefetch warms the current-conditions cache for every configured place so
// clients keep getting answers through an outage.
func (s *Scheduler) prefetch() {
	s.log.Debug("warming caches", "places", len(s.places))

	var wg sync.WaitGroup
	for _, place := range s.places {
		place := place
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
			defer cancel()

			pt, err := s.resolver.Resolve(ctx, place)
			if err != nil {
				s.log.Warn("prefetch geocoding failed", "place", place.String(), "error", err)
				return
			}
			if _, err := s.service.CurrentFor(ctx, pt, prefetchAccuracyMeters); err != nil {
				s.log.Warn("prefetch fetch failed", "place", place.String(), "error", err)
			}
		}()
	}
	wg.Wait()
}
