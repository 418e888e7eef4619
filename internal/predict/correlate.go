package predict

import "github.com/stratosignals/balloonalert/model"

// Region is the containment predicate a predicted path is scanned against.
// *filter.PositionFilter satisfies it.
type Region interface {
	Contains(lat, lon float64) bool
}

// FirstInside scans the path's samples in order and returns the first one
// whose surface coordinate satisfies the region: the earliest-time entry
// point, not the closest one. The second return value is false when no
// sample is inside.
func FirstInside(path []model.PathPoint, region Region) (model.PathPoint, bool) {
	for _, p := range path {
		if region.Contains(p.Lat, p.Lon) {
			return p, true
		}
	}
	return model.PathPoint{}, false
}
