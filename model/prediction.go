package model

import "time"

// PathPoint is one sample of a forecast flight path. Longitudes are always
// stored normalised to [-180, 180].
type PathPoint struct {
	Time time.Time
	Lat  float64
	Lon  float64
	Alt  float64
}

// PredictionResult is a forecast flight path produced by the predictor.
// A fresh result supersedes the previous one for the same payload; results
// are never merged.
type PredictionResult struct {
	// Dataset is a compact label of the weather model run the prediction was
	// computed against, e.g. "2023050112z".
	Dataset string
	Path    []PathPoint
}
