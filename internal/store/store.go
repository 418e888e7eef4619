// Package store holds per-payload tracking state for the alerting engine.
//
// The store is deliberately not safe for concurrent use: the engine's single
// worker is its only owner (see the engine package), which removes the need
// for locking on either the map or the records. Records are created on first
// sighting and live for the process lifetime; there is no eviction, which is
// an accepted limitation of this engine.
package store

import (
	"time"

	"github.com/stratosignals/balloonalert/model"
)

// TrackState is the mutable tracking record for one payload callsign.
type TrackState struct {
	// Latest is the most recently delivered event, regardless of its
	// timestamp ordering relative to earlier deliveries.
	Latest model.TelemetryEvent

	// Last known position, overwritten on every delivery ("latest wins").
	LastLat float64
	LastLon float64
	LastAlt float64

	// LastSeen is the observation time of the most recent delivery.
	LastSeen time.Time

	// LastPrediction is when the predictor was last attempted for this
	// payload; the zero value means never. It advances even when the
	// attempt fails, so the rate limit covers failed attempts too.
	LastPrediction time.Time

	// LastAlert is when a notification was last dispatched for this
	// payload; the zero value means never. It advances even when delivery
	// fails, so a flaky transport cannot cause a notification storm.
	LastAlert time.Time

	// Prediction is the most recent prediction result, superseded wholesale
	// by the next run. Nil until the first successful prediction.
	Prediction *model.PredictionResult
}

// TrackStore maps payload callsigns to their tracking records.
type TrackStore struct {
	tracks map[string]*TrackState
}

// NewTrackStore constructs an empty store.
func NewTrackStore() *TrackStore {
	return &TrackStore{tracks: make(map[string]*TrackState)}
}

// GetOrCreate returns the record for the event's callsign, creating a
// first-sight record seeded from the event when none exists. The second
// return value reports whether a new record was created.
func (s *TrackStore) GetOrCreate(ev model.TelemetryEvent) (*TrackState, bool) {
	if ts, ok := s.tracks[ev.Callsign]; ok {
		return ts, false
	}

	ts := &TrackState{
		Latest:   ev,
		LastLat:  ev.Lat,
		LastLon:  ev.Lon,
		LastAlt:  ev.Alt,
		LastSeen: ev.Time,
	}
	s.tracks[ev.Callsign] = ts
	return ts, true
}

// UpdateLatest overwrites the record's last-known position and time with the
// event's values unconditionally. No ordering check is made against the
// stored timestamp: an event delivered out of order silently becomes the new
// "latest". That matches the upstream behaviour this engine preserves.
func (ts *TrackState) UpdateLatest(ev model.TelemetryEvent) {
	ts.Latest = ev
	ts.LastLat = ev.Lat
	ts.LastLon = ev.Lon
	ts.LastAlt = ev.Alt
	ts.LastSeen = ev.Time
}

// Get returns the record for a callsign, or nil when unseen.
func (s *TrackStore) Get(callsign string) *TrackState {
	return s.tracks[callsign]
}

// Len reports the number of tracked payloads.
func (s *TrackStore) Len() int { return len(s.tracks) }
