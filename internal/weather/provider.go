package weather

import (
	"context"

	"github.com/corvid-labs/weathervane/internal/geo"
)

// Provider abstracts a current-conditions source (e.g. Open-Meteo,
// OpenWeatherMap). Implementations own their transport resilience; retries
// are the caller's concern.
type Provider interface {
	Name() string
	Current(ctx context.Context, pt geo.Point) (Snapshot, error)
}

// ForecastProvider is implemented by providers that can also produce a
// multi-day outlook.
type ForecastProvider interface {
	Provider
	Forecast(ctx context.Context, pt geo.Point, days int) (Forecast, error)
}
