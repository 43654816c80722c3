package geo

import (
	"math"
	"testing"
)

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Vancouver downtown to UBC is roughly 9-10 km.
	downtown := Point{Lng: -123.1207, Lat: 49.2827}
	ubc := Point{Lng: -123.2460, Lat: 49.2606}

	d := HaversineKm(downtown, ubc)
	if d < 8 || d > 11 {
		t.Errorf("expected ~9-10 km, got %.2f", d)
	}
}

func TestHaversineKm_ZeroDistance(t *testing.T) {
	p := Point{Lng: -123.1, Lat: 49.3}
	if d := HaversineKm(p, p); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := Point{Lng: -123.1, Lat: 49.3}
	b := Point{Lng: -122.8, Lat: 49.1}

	d1 := HaversineKm(a, b)
	d2 := HaversineKm(b, a)
	if math.Abs(d1-d2) > 1e-9 {
		t.Errorf("distance should be symmetric: %f vs %f", d1, d2)
	}
}

func TestBoundingBox_ContainsRadius(t *testing.T) {
	center := Point{Lng: -123.1, Lat: 49.3}
	minLat, maxLat, minLng, maxLng := BoundingBox(center, 5)

	// A point 4.9 km due north must fall inside the box.
	north := Point{Lng: center.Lng, Lat: center.Lat + 4.9/EarthRadiusKm*180/math.Pi}
	if north.Lat < minLat || north.Lat > maxLat || north.Lng < minLng || north.Lng > maxLng {
		t.Errorf("point inside radius fell outside bounding box")
	}
}

func TestBoundingBox_NearPole(t *testing.T) {
	_, _, minLng, maxLng := BoundingBox(Point{Lng: 10, Lat: 90}, 5)
	if minLng != -180 || maxLng != 180 {
		t.Errorf("expected full longitude span at the pole, got [%f, %f]", minLng, maxLng)
	}
}
