package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/corvid-labs/weathervane/internal/fault"
	"github.com/corvid-labs/weathervane/internal/geo"
	"github.com/corvid-labs/weathervane/internal/weather"
)

// OpenMeteoProvider serves current conditions and daily forecasts from
// Open-Meteo. The API is keyless.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		client:  client,
		circuit: newBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Current(ctx context.Context, pt geo.Point) (weather.Snapshot, error) {
	if !pt.Valid() {
		return weather.Snapshot{}, &fault.Error{Kind: fault.KindInvalidRequest, Message: "openmeteo: invalid coordinates"}
	}

	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", pt.Lat))
	values.Set("longitude", fmt.Sprintf("%f", pt.Lon))
	values.Set("current_weather", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	if err != nil {
		return weather.Snapshot{}, err
	}

	resp, err := doRequest(ctx, p.client, p.circuit, req)
	if err != nil {
		return weather.Snapshot{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		CurrentWeather struct {
			Temperature float64 `json:"temperature"`
			WindSpeed   float64 `json:"windspeed"`
			Time        string  `json:"time"`
			WeatherCode int     `json:"weathercode"`
		} `json:"current_weather"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Snapshot{}, fmt.Errorf("openmeteo: decode response: %w", err)
	}

	ts, err := time.Parse("2006-01-02T15:04", payload.CurrentWeather.Time)
	if err != nil {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	return weather.Snapshot{
		Point:       pt,
		Provider:    p.name,
		Timestamp:   ts,
		Temperature: payload.CurrentWeather.Temperature,
		// current_weather carries a reduced field set; humidity and pressure
		// stay zero.
		WindSpeed: payload.CurrentWeather.WindSpeed,
		Condition: mapOpenMeteoCondition(payload.CurrentWeather.WeatherCode),
	}, nil
}

// Forecast fetches a daily outlook of up to days entries.
func (p *OpenMeteoProvider) Forecast(ctx context.Context, pt geo.Point, days int) (weather.Forecast, error) {
	if !pt.Valid() {
		return weather.Forecast{}, &fault.Error{Kind: fault.KindInvalidRequest, Message: "openmeteo: invalid coordinates"}
	}

	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", pt.Lat))
	values.Set("longitude", fmt.Sprintf("%f", pt.Lon))
	values.Set("daily", "weathercode,temperature_2m_max,temperature_2m_min,precipitation_sum")
	values.Set("forecast_days", strconv.Itoa(days))
	values.Set("timezone", "UTC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	if err != nil {
		return weather.Forecast{}, err
	}

	resp, err := doRequest(ctx, p.client, p.circuit, req)
	if err != nil {
		return weather.Forecast{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time        []string  `json:"time"`
			WeatherCode []int     `json:"weathercode"`
			TempMax     []float64 `json:"temperature_2m_max"`
			TempMin     []float64 `json:"temperature_2m_min"`
			PrecipSum   []float64 `json:"precipitation_sum"`
		} `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Forecast{}, fmt.Errorf("openmeteo: decode response: %w", err)
	}

	fc := weather.Forecast{Point: pt, Provider: p.name}
	for i, day := range payload.Daily.Time {
		if i >= days {
			break
		}
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}

		entry := weather.DayForecast{Date: date.UTC()}
		if i < len(payload.Daily.TempMax) {
			entry.TempMaxC = payload.Daily.TempMax[i]
		}
		if i < len(payload.Daily.TempMin) {
			entry.TempMinC = payload.Daily.TempMin[i]
		}
		if i < len(payload.Daily.PrecipSum) {
			entry.PrecipMM = payload.Daily.PrecipSum[i]
		}
		if i < len(payload.Daily.WeatherCode) {
			entry.Condition = mapOpenMeteoCondition(payload.Daily.WeatherCode[i])
		}
		fc.Days = append(fc.Days, entry)
	}
	if len(fc.Days) == 0 {
		return weather.Forecast{}, fmt.Errorf("openmeteo: forecast response carried no days")
	}
	return fc, nil
}

// mapOpenMeteoCondition folds WMO weather codes into the normalized set.
func mapOpenMeteoCondition(code int) weather.Condition {
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case code >= 71 && code <= 77:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
