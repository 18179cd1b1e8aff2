package weather

import (
	"time"

	"github.com/corvid-labs/weathervane/internal/geo"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// MaxForecastDays bounds how far ahead a forecast request may reach.
const MaxForecastDays = 7

// Snapshot is the normalized current-conditions view for a point in time and
// space, as reported by a single provider.
type Snapshot struct {
	Point       geo.Point `json:"point"`
	Provider    string    `json:"provider"`
	Timestamp   time.Time `json:"timestamp"` // always UTC
	Temperature float64   `json:"temperatureC"`
	Humidity    float64   `json:"humidityPercent"`
	WindSpeed   float64   `json:"windSpeedMs"`
	Pressure    float64   `json:"pressureHpa"`
	PrecipMM    float64   `json:"precipMm"`
	Condition   Condition `json:"condition"`
}

// DayForecast is one day of a multi-day outlook.
type DayForecast struct {
	Date      time.Time `json:"date"` // midnight UTC
	TempMinC  float64   `json:"tempMinC"`
	TempMaxC  float64   `json:"tempMaxC"`
	PrecipMM  float64   `json:"precipMm"`
	Condition Condition `json:"condition"`
}

// Forecast is a multi-day outlook for a point, ordered by date ascending.
type Forecast struct {
	Point    geo.Point     `json:"point"`
	Provider string        `json:"provider"`
	Days     []DayForecast `json:"days"`
}
