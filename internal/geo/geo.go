// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"

	"dispatch/internal/types"
)

const earthRadiusM = 6371000.0

// metersPerDegLat is the approximate north-south span of one degree of latitude.
const metersPerDegLat = 111320.0

// HaversineM returns the great-circle distance in metres between two points
// specified in decimal degrees.
func HaversineM(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// DegreeSpan converts a radius in metres centred at lat into the latitude and
// longitude degree deltas that cover it. The longitude delta widens towards
// the poles; near them the cosine collapses, so it is clamped to avoid
// scanning the whole globe per query.
func DegreeSpan(lat, radiusM float64) (dLat, dLng float64) {
	dLat = radiusM / metersPerDegLat
	cos := math.Cos(degreesToRadians(lat))
	if cos < 0.01 {
		cos = 0.01
	}
	dLng = radiusM / (metersPerDegLat * cos)
	return dLat, dLng
}

// ValidPoint reports whether p is a usable WGS84 coordinate.
func ValidPoint(p types.Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
