package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/lmittmann/tint"

	"github.com/corvid-labs/weathervane/internal/adaptive"
	httpapi "github.com/corvid-labs/weathervane/internal/api/http"
	"github.com/corvid-labs/weathervane/internal/config"
	"github.com/corvid-labs/weathervane/internal/geocode"
	"github.com/corvid-labs/weathervane/internal/metrics"
	"github.com/corvid-labs/weathervane/internal/netmon"
	"github.com/corvid-labs/weathervane/internal/scheduler"
	"github.com/corvid-labs/weathervane/internal/weather"
	"github.com/corvid-labs/weathervane/internal/weather/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.TimeOnly,
	})))

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Connectivity monitor feeding the adaptive tuner and the network gauges.
	monitor := netmon.New(
		netmon.NewHTTPProbe(cfg.ProbeURL, netmon.DefaultProbeTimeout),
		netmon.Options{Interval: cfg.ProbeInterval},
	)
	publishNetworkStatus(monitor.Current())
	monitor.Subscribe(func(st netmon.Status) {
		metrics.NetworkTransitions.Inc()
		publishNetworkStatus(st)
	})

	// Geocoding is optional; without a key, place lookup and prefetch answer
	// from coordinates only.
	var resolver geocode.Resolver
	if cfg.GeocoderAPIKey != "" {
		resolver = geocode.WithCache(geocode.NewGoogleResolver(cfg.GeocoderAPIKey))
	} else {
		slog.Info("GEOCODER_API_KEY not set; place lookup disabled")
	}

	// Open-Meteo needs no key; a keyed provider becomes the fallback when
	// configured.
	primary := providers.NewOpenMeteoProvider(httpClient)
	var fallback weather.Provider
	switch {
	case cfg.OpenWeatherAPIKey != "":
		fallback = providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey)
	case cfg.WeatherAPIKey != "":
		fallback = providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey)
	}

	tuner := adaptive.New(adaptive.Options{PolicyOverride: cfg.RetryOverride})

	service := weather.NewService(weather.ServiceConfig{
		Primary:  primary,
		Fallback: fallback,
		Status:   monitor,
		Tuner:    tuner,
		Cache:    cfg.Cache,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor.Start(ctx)
	defer monitor.Stop()

	sched := scheduler.New(scheduler.Options{
		Service:          service,
		Resolver:         resolver,
		Places:           cfg.PrefetchPlaces,
		SweepInterval:    cfg.SweepInterval,
		PrefetchInterval: cfg.PrefetchInterval,
	})
	if err := sched.Start(); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weathervane",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, service, resolver)

	go func() {
		slog.Info("listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("fiber server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
}

func publishNetworkStatus(st netmon.Status) {
	metrics.NetworkOnline.Set(gaugeValue(st.Online))
	metrics.NetworkDegraded.Set(gaugeValue(st.Degraded))
}

func gaugeValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
