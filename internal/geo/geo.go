// Package geo provides the distance helpers shared by the matchmaking
// scorer and restaurant search.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Point is a geographic coordinate. Longitude first to match the
// GeoJSON-style [lng, lat] ordering used by the stored user documents.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// HaversineKm returns the great-circle distance between two points in
// kilometres.
func HaversineKm(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLng*sinLng
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// BoundingBox returns the min/max latitude and longitude of a box that
// contains every point within radiusKm of center. It is a coarse prefilter:
// callers must still apply HaversineKm to the candidates. Near the poles the
// longitude span degenerates to the full circle.
func BoundingBox(center Point, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := radiusKm / EarthRadiusKm * 180 / math.Pi
	minLat = center.Lat - dLat
	maxLat = center.Lat + dLat

	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 1e-6 {
		return minLat, maxLat, -180, 180
	}
	dLng := dLat / cosLat
	return minLat, maxLat, center.Lng - dLng, center.Lng + dLng
}
