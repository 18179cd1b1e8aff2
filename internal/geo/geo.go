package geo

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000

// Point represents a geographic coordinate (WGS 84).
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within the WGS 84 coordinate range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Key returns a canonical string key for indexing this point in stores.
// Coordinates are rounded to 4 decimal places (roughly 11 m), so nearby
// points deliberately collide.
func (p Point) Key() string {
	return fmt.Sprintf("%.4f:%.4f", p.Lat, p.Lon)
}

// String implements fmt.Stringer for log output.
func (p Point) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.Lat, p.Lon)
}

// Distance returns the great-circle distance between two points in meters
// using the haversine formula.
func Distance(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
