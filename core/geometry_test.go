package core

import (
	"math"
	"testing"
)

func TestPositionInfoSamePoint(t *testing.T) {
	p := Point{Lat: -34.0, Lon: 138.0, AltM: 100}
	stats := PositionInfo(p, p)

	if stats.GreatCircleM != 0 {
		t.Fatalf("great-circle distance between identical points = %v, want 0", stats.GreatCircleM)
	}
	if math.IsNaN(stats.ElevationDeg) || math.IsInf(stats.ElevationDeg, 0) {
		t.Fatalf("elevation between identical points must be finite, got %v", stats.ElevationDeg)
	}
	if stats.StraightM != 0 {
		t.Fatalf("chord distance between identical points = %v, want 0", stats.StraightM)
	}
}

func TestPositionInfoSymmetricDistance(t *testing.T) {
	a := Point{Lat: -34.9499, Lon: 138.5194}
	b := Point{Lat: 51.5, Lon: -0.12}

	ab := PositionInfo(a, b)
	ba := PositionInfo(b, a)

	if diff := math.Abs(ab.GreatCircleM - ba.GreatCircleM); diff > 1e-6 {
		t.Fatalf("great-circle distance not symmetric: |%v - %v| = %v", ab.GreatCircleM, ba.GreatCircleM, diff)
	}
}

func TestPositionInfoOneDegreeOfLatitude(t *testing.T) {
	stats := PositionInfo(Point{Lat: 0, Lon: 0}, Point{Lat: 1, Lon: 0})

	want := EarthRadiusM * math.Pi / 180
	if diff := math.Abs(stats.GreatCircleM - want); diff > 1 {
		t.Fatalf("1 degree of latitude = %v m, want %v m (+-1m)", stats.GreatCircleM, want)
	}
}

func TestPositionInfoBearings(t *testing.T) {
	cases := []struct {
		name    string
		to      Point
		bearing float64
	}{
		{"due north", Point{Lat: 1, Lon: 0}, 0},
		{"due east", Point{Lat: 0, Lon: 1}, 90},
		{"due south", Point{Lat: -1, Lon: 0}, 180},
		{"due west", Point{Lat: 0, Lon: -1}, 270},
	}

	from := Point{Lat: 0, Lon: 0}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stats := PositionInfo(from, tc.to)
			if diff := math.Abs(stats.BearingDeg - tc.bearing); diff > 1e-9 {
				t.Fatalf("bearing = %v, want %v", stats.BearingDeg, tc.bearing)
			}
			if stats.BearingDeg < 0 || stats.BearingDeg >= 360 {
				t.Fatalf("bearing %v outside [0, 360)", stats.BearingDeg)
			}
		})
	}
}

func TestPositionInfoOverheadElevation(t *testing.T) {
	ground := Point{Lat: 0, Lon: 0, AltM: 0}
	above := Point{Lat: 0, Lon: 0, AltM: 1000}

	stats := PositionInfo(ground, above)
	if diff := math.Abs(stats.ElevationDeg - 90); diff > 1e-9 {
		t.Fatalf("elevation of point directly overhead = %v, want 90", stats.ElevationDeg)
	}
	if diff := math.Abs(stats.StraightM - 1000); diff > 1e-6 {
		t.Fatalf("chord to point 1000m overhead = %v, want 1000", stats.StraightM)
	}
}

func TestPointInRingSquare(t *testing.T) {
	square := []LatLon{{0, 0}, {0, 10}, {10, 10}, {10, 0}}

	if !PointInRing(5, 5, square) {
		t.Fatalf("PointInRing(5,5) = false, want true")
	}
	if PointInRing(20, 20, square) {
		t.Fatalf("PointInRing(20,20) = true, want false")
	}
	if PointInRing(-1, 5, square) {
		t.Fatalf("PointInRing(-1,5) = true, want false")
	}
}

func TestPointInRingDeterministic(t *testing.T) {
	square := []LatLon{{0, 0}, {0, 10}, {10, 10}, {10, 0}}

	// A point on the boundary may land on either side, but repeated calls
	// with identical input must agree.
	first := PointInRing(0, 5, square)
	for i := 0; i < 100; i++ {
		if PointInRing(0, 5, square) != first {
			t.Fatalf("boundary containment flapped on call %d", i)
		}
	}
}

func TestPointInRingDegenerate(t *testing.T) {
	if PointInRing(0, 0, nil) {
		t.Fatalf("empty ring must contain nothing")
	}
	if PointInRing(0, 0, []LatLon{{0, 0}, {1, 1}}) {
		t.Fatalf("two-vertex ring must contain nothing")
	}
}
