package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corvid-labs/weathervane/internal/adaptive"
	"github.com/corvid-labs/weathervane/internal/fault"
	"github.com/corvid-labs/weathervane/internal/geo"
	"github.com/corvid-labs/weathervane/internal/geocache"
	"github.com/corvid-labs/weathervane/internal/metrics"
	"github.com/corvid-labs/weathervane/internal/netmon"
	"github.com/corvid-labs/weathervane/internal/retry"
)

// ErrNoForecastProvider is returned when no configured provider can produce
// a multi-day outlook.
var ErrNoForecastProvider = errors.New("no forecast-capable provider configured")

// StatusSource reports the current connectivity snapshot.
type StatusSource interface {
	Current() netmon.Status
}

// Tuner derives execution parameters from a connectivity snapshot.
type Tuner interface {
	PolicyFor(st netmon.Status) retry.Policy
	FetchParamsFor(st netmon.Status) adaptive.FetchParams
}

// ServiceConfig wires a Service. Primary, Status, and Tuner are required;
// Fallback and Logger are optional.
type ServiceConfig struct {
	Primary  Provider
	Fallback Provider
	Status   StatusSource
	Tuner    Tuner
	Cache    geocache.Options
	Logger   *slog.Logger
}

// Service answers weather queries cache-first and fetches through the
// adaptive retry pipeline on a miss. It owns both caches; nothing else
// touches them.
type Service struct {
	primary  Provider
	fallback Provider
	status   StatusSource
	tuner    Tuner
	current  *geocache.Cache[Snapshot]
	forecast *geocache.Cache[Forecast]
	log      *slog.Logger
}

// NewService creates a Service with freshly initialized caches.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		status:   cfg.Status,
		tuner:    cfg.Tuner,
		current:  geocache.New[Snapshot](cfg.Cache),
		forecast: geocache.New[Forecast](cfg.Cache),
		log:      logger,
	}
}

// CurrentFor returns current conditions for the point, served from cache when
// a fresh entry exists. accuracyMeters describes the caller's position fix
// and shapes the TTL of whatever gets cached.
func (s *Service) CurrentFor(ctx context.Context, pt geo.Point, accuracyMeters float64) (Snapshot, error) {
	if s.primary == nil {
		return Snapshot{}, fmt.Errorf("no weather provider configured")
	}

	if snap, ok := s.current.Get(pt, ""); ok {
		metrics.CacheHits.WithLabelValues("current").Inc()
		return snap, nil
	}
	metrics.CacheMisses.WithLabelValues("current").Inc()

	st := s.status.Current()
	policy := s.tuner.PolicyFor(st)
	params := s.tuner.FetchParamsFor(st)

	op := s.currentOp(s.primary, pt, params.Timeout)
	start := time.Now()
	var snap Snapshot
	var err error
	if s.fallback != nil {
		snap, err = retry.ExecuteWithFallback(ctx, policy, op, s.currentOp(s.fallback, pt, params.Timeout))
	} else {
		snap, err = retry.Execute(ctx, policy, op)
	}
	metrics.FetchLatency.WithLabelValues(s.primary.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		classified := fault.Classify(err)
		metrics.FetchFailures.WithLabelValues(s.primary.Name(), string(classified.Kind)).Inc()
		s.log.Warn("current conditions fetch failed",
			"point", pt.String(),
			"kind", string(classified.Kind),
			"error", classified.Message,
		)
		return Snapshot{}, classified
	}

	s.current.Put(pt, accuracyMeters, snap, "")
	return snap, nil
}

// ForecastFor returns a multi-day outlook for the point, cached under a
// per-horizon fingerprint so a 3-day and a 7-day answer never collide.
func (s *Service) ForecastFor(ctx context.Context, pt geo.Point, accuracyMeters float64, days int) (Forecast, error) {
	if days <= 0 || days > MaxForecastDays {
		return Forecast{}, &fault.Error{
			Kind:    fault.KindInvalidRequest,
			Message: fmt.Sprintf("forecast days must be between 1 and %d", MaxForecastDays),
		}
	}

	fingerprint := fmt.Sprintf("days=%d", days)
	if fc, ok := s.forecast.Get(pt, fingerprint); ok {
		metrics.CacheHits.WithLabelValues("forecast").Inc()
		return fc, nil
	}
	metrics.CacheMisses.WithLabelValues("forecast").Inc()

	fp := s.forecastProvider()
	if fp == nil {
		return Forecast{}, ErrNoForecastProvider
	}

	st := s.status.Current()
	policy := s.tuner.PolicyFor(st)
	params := s.tuner.FetchParamsFor(st)

	op := instrument(fp.Name(), retry.WithTimeout(params.Timeout, func(ctx context.Context) (Forecast, error) {
		fc, err := fp.Forecast(ctx, pt, days)
		if err != nil {
			return Forecast{}, fmt.Errorf("%s forecast: %w", fp.Name(), err)
		}
		return fc, nil
	}))

	start := time.Now()
	fc, err := retry.Execute(ctx, policy, op)
	metrics.FetchLatency.WithLabelValues(fp.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		classified := fault.Classify(err)
		metrics.FetchFailures.WithLabelValues(fp.Name(), string(classified.Kind)).Inc()
		s.log.Warn("forecast fetch failed",
			"point", pt.String(),
			"days", days,
			"kind", string(classified.Kind),
			"error", classified.Message,
		)
		return Forecast{}, classified
	}

	s.forecast.Put(pt, accuracyMeters, fc, fingerprint)
	return fc, nil
}

// ClientParams returns the connectivity snapshot and the sampling parameters
// a location-sampling client should adopt under it.
func (s *Service) ClientParams() (netmon.Status, adaptive.FetchParams) {
	st := s.status.Current()
	return st, s.tuner.FetchParamsFor(st)
}

// SweepCaches drops expired entries from both caches and reports how many
// each sweep removed.
func (s *Service) SweepCaches() (current, forecast int) {
	current = s.current.Sweep()
	forecast = s.forecast.Sweep()
	metrics.CacheEvictions.WithLabelValues("current").Add(float64(current))
	metrics.CacheEvictions.WithLabelValues("forecast").Add(float64(forecast))
	return current, forecast
}

// CacheSizes reports entry counts for the health surface.
func (s *Service) CacheSizes() (current, forecast int) {
	return s.current.Len(), s.forecast.Len()
}

// currentOp wraps one provider's fetch as a per-attempt-timed, instrumented
// operation.
func (s *Service) currentOp(p Provider, pt geo.Point, timeout time.Duration) retry.Operation[Snapshot] {
	return instrument(p.Name(), retry.WithTimeout(timeout, func(ctx context.Context) (Snapshot, error) {
		snap, err := p.Current(ctx, pt)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%s current conditions: %w", p.Name(), err)
		}
		return snap, nil
	}))
}

// forecastProvider picks the first forecast-capable provider, primary first.
func (s *Service) forecastProvider() ForecastProvider {
	if fp, ok := s.primary.(ForecastProvider); ok {
		return fp
	}
	if s.fallback != nil {
		if fp, ok := s.fallback.(ForecastProvider); ok {
			return fp
		}
	}
	return nil
}

// instrument counts attempts and retries for one logical fetch. It must wrap
// the outermost operation: the counter moves only on the orchestrator's
// goroutine, never on an abandoned timed-out attempt.
func instrument[T any](provider string, op retry.Operation[T]) retry.Operation[T] {
	attempts := 0
	return func(ctx context.Context) (T, error) {
		attempts++
		metrics.FetchAttempts.WithLabelValues(provider).Inc()
		if attempts > 1 {
			metrics.FetchRetries.WithLabelValues(provider).Inc()
		}
		return op(ctx)
	}
}
