package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/corvid-labs/weathervane/internal/geocache"
	"github.com/corvid-labs/weathervane/internal/geocode"
	"github.com/corvid-labs/weathervane/internal/netmon"
	"github.com/corvid-labs/weathervane/internal/retry"
)

// defaultProbeURL answers HEAD requests with an empty 204; any response at
// all proves reachability.
const defaultProbeURL = "https://connectivitycheck.gstatic.com/generate_204"

// AppConfig is the assembled runtime configuration.
type AppConfig struct {
	Port     string
	LogLevel slog.Level

	// HTTPTimeout caps outbound provider requests at the http.Client level.
	HTTPTimeout time.Duration

	OpenWeatherAPIKey string
	WeatherAPIKey     string
	GeocoderAPIKey    string

	ProbeURL      string
	ProbeInterval time.Duration

	SweepInterval    time.Duration
	PrefetchInterval time.Duration
	PrefetchPlaces   []geocode.Place

	Cache geocache.Options

	// RetryOverride pins retry knobs regardless of link quality; zero fields
	// keep the adaptive defaults.
	RetryOverride retry.Policy
}

// Load assembles configuration from, in order of precedence: environment
// variables, the optional YAML file named by CONFIG_FILE, built-in defaults.
// A .env file in the working directory is folded into the environment first.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		overlay, err := loadOverlay(path)
		if err != nil {
			return nil, err
		}
		src.file = overlay
	}

	cfg := &AppConfig{
		Port:              src.get("PORT", "8080"),
		OpenWeatherAPIKey: src.get("OPENWEATHER_API_KEY", ""),
		WeatherAPIKey:     src.get("WEATHERAPI_API_KEY", ""),
		GeocoderAPIKey:    src.get("GEOCODER_API_KEY", ""),
		ProbeURL:          src.get("PROBE_URL", defaultProbeURL),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(src.get("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	var err error
	if cfg.HTTPTimeout, err = src.duration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProbeInterval, err = src.duration("PROBE_INTERVAL", netmon.DefaultInterval); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = src.duration("SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PrefetchInterval, err = src.duration("PREFETCH_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PrefetchPlaces, err = parsePlaces(src.get("PREFETCH_LOCATIONS", "")); err != nil {
		return nil, err
	}

	if cfg.Cache.BaseTTL, err = src.duration("CACHE_BASE_TTL", geocache.DefaultBaseTTL); err != nil {
		return nil, err
	}
	if cfg.Cache.AccuracyMultiplier, err = src.float("CACHE_ACCURACY_MULTIPLIER", geocache.DefaultAccuracyMultiplier); err != nil {
		return nil, err
	}
	if cfg.Cache.MinTTL, err = src.duration("CACHE_MIN_TTL", geocache.DefaultMinTTL); err != nil {
		return nil, err
	}
	if cfg.Cache.MaxTTL, err = src.duration("CACHE_MAX_TTL", geocache.DefaultMaxTTL); err != nil {
		return nil, err
	}
	if cfg.Cache.KeyToleranceMeters, err = src.float("CACHE_KEY_TOLERANCE_M", geocache.DefaultKeyToleranceMeters); err != nil {
		return nil, err
	}

	if cfg.RetryOverride.MaxAttempts, err = src.integer("RETRY_MAX_ATTEMPTS", 0); err != nil {
		return nil, err
	}
	if cfg.RetryOverride.BaseDelay, err = src.duration("RETRY_BASE_DELAY", 0); err != nil {
		return nil, err
	}
	if cfg.RetryOverride.MaxDelay, err = src.duration("RETRY_MAX_DELAY", 0); err != nil {
		return nil, err
	}
	if cfg.RetryOverride.Multiplier, err = src.float("RETRY_MULTIPLIER", 0); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parsePlaces parses the "City,CC;City,CC" prefetch list.
func parsePlaces(raw string) ([]geocode.Place, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var places []geocode.Place
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ",", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid location %q, want City,CC", part)
		}
		city := strings.TrimSpace(fields[0])
		country := strings.TrimSpace(fields[1])
		if city == "" || country == "" {
			return nil, fmt.Errorf("invalid location %q, want City,CC", part)
		}
		places = append(places, geocode.Place{City: city, Country: country})
	}
	return places, nil
}

// source resolves one configuration key: environment first, then the
// optional file overlay, then the built-in default.
type source struct {
	file map[string]string
}

func (s source) get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v := s.file[key]; v != "" {
		return v
	}
	return def
}

func (s source) duration(key string, def time.Duration) (time.Duration, error) {
	raw := s.get(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func (s source) float(key string, def float64) (float64, error) {
	raw := s.get(key, "")
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func (s source) integer(key string, def int) (int, error) {
	raw := s.get(key, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// loadOverlay reads a YAML file keyed by the same names as the environment,
// so each knob has exactly one name everywhere.
func loadOverlay(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	overlay := make(map[string]string, len(raw))
	for key, value := range raw {
		overlay[key] = fmt.Sprint(value)
	}
	return overlay, nil
}
