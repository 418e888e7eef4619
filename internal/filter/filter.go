package filter

import (
	"errors"
	"fmt"

	"github.com/stratosignals/balloonalert/core"
)

// Kind identifies the shape of a position filter.
type Kind int

const (
	// KindRadius contains everything within a great-circle distance of a
	// centre point.
	KindRadius Kind = iota
	// KindGeofence contains everything inside a polygon ring.
	KindGeofence
)

func (k Kind) String() string {
	switch k {
	case KindRadius:
		return "radius"
	case KindGeofence:
		return "geofence"
	default:
		return "unknown"
	}
}

// Common construction errors.
var (
	ErrInvalidRadius = errors.New("filter: radius must be positive")
	ErrInvalidCentre = errors.New("filter: centre coordinates out of range")
	ErrNoVertices    = errors.New("filter: geofence yielded no usable vertices")
)

// PositionFilter is a closed predicate over a surface coordinate. It is
// immutable once constructed and safe to call from any number of concurrent
// readers; the decision for a fixed input never changes.
type PositionFilter struct {
	kind Kind

	// radius variant
	centre   core.Point
	radiusKm float64

	// geofence variant
	ring []core.LatLon
}

// Kind reports which variant this filter is.
func (f *PositionFilter) Kind() Kind { return f.kind }

// NewRadius constructs a radius filter from a centre coordinate and a radius
// in kilometres.
func NewRadius(lat, lon, radiusKm float64) (*PositionFilter, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: %v km", ErrInvalidRadius, radiusKm)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: %v,%v", ErrInvalidCentre, lat, lon)
	}
	return &PositionFilter{
		kind:     KindRadius,
		centre:   core.Point{Lat: lat, Lon: lon},
		radiusKm: radiusKm,
	}, nil
}

// Contains reports whether the coordinate satisfies the filter.
func (f *PositionFilter) Contains(lat, lon float64) bool {
	switch f.kind {
	case KindRadius:
		stats := core.PositionInfo(f.centre, core.Point{Lat: lat, Lon: lon})
		return stats.GreatCircleM <= f.radiusKm*1000
	case KindGeofence:
		return core.PointInRing(lat, lon, f.ring)
	default:
		return false
	}
}

// Describe returns a short human-readable summary for startup logging.
func (f *PositionFilter) Describe() string {
	switch f.kind {
	case KindRadius:
		return fmt.Sprintf("radius %g km around %g,%g", f.radiusKm, f.centre.Lat, f.centre.Lon)
	case KindGeofence:
		return fmt.Sprintf("geofence with %d vertices", len(f.ring))
	default:
		return "unknown filter"
	}
}
