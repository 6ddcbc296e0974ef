// Package geo provides distance helpers and the Redis-backed live cab index.
package geo

import (
	"fmt"
	"math"

	"github.com/example/ride-pooling/internal/models"
)

const earthRadiusM = 6371000.0

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b models.Location) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// HaversineKm returns the great-circle distance in kilometers.
func HaversineKm(a, b models.Location) float64 {
	return HaversineM(a, b) / 1000.0
}

// WithinM reports whether b lies within radiusM meters of a.
func WithinM(a, b models.Location, radiusM float64) bool {
	return HaversineM(a, b) <= radiusM
}

// CellKey buckets a location into a coarse grid cell (~1.1km). Used as the
// cache key for area-scoped lookups such as surge demand/supply counters.
func CellKey(loc models.Location) string {
	return fmt.Sprintf("%.2f:%.2f", loc.Lat, loc.Lon)
}

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }
