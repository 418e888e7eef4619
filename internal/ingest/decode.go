package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/stratosignals/balloonalert/model"
)

// Telemetry frame fields consumed directly. Everything else lands in the
// event's Extra map so alert bodies and logs can surface it untouched.
type frame struct {
	PayloadCallsign string  `json:"payload_callsign"`
	Datetime        string  `json:"datetime"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	Alt             float64 `json:"alt"`
	Comment         string  `json:"comment"`
	Modulation      string  `json:"modulation"`
}

var knownFrameKeys = map[string]struct{}{
	"payload_callsign": {},
	"datetime":         {},
	"lat":              {},
	"lon":              {},
	"alt":              {},
	"comment":          {},
	"modulation":       {},
}

var (
	ErrMissingCallsign = errors.New("frame missing payload_callsign")
	ErrMissingTime     = errors.New("frame missing datetime")
)

// DecodeFrame parses one telemetry frame as published on the
// amateur feed. Frames without a callsign or timestamp are rejected.
func DecodeFrame(payload []byte) (model.TelemetryEvent, error) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return model.TelemetryEvent{}, fmt.Errorf("decoding frame: %w", err)
	}
	if f.PayloadCallsign == "" {
		return model.TelemetryEvent{}, ErrMissingCallsign
	}
	if f.Datetime == "" {
		return model.TelemetryEvent{}, ErrMissingTime
	}
	ts, err := parseFrameTime(f.Datetime)
	if err != nil {
		return model.TelemetryEvent{}, fmt.Errorf("decoding frame datetime %q: %w", f.Datetime, err)
	}

	var raw map[string]any
	extra := map[string]any(nil)
	if err := json.Unmarshal(payload, &raw); err == nil {
		for k := range knownFrameKeys {
			delete(raw, k)
		}
		if len(raw) > 0 {
			extra = raw
		}
	}

	return model.TelemetryEvent{
		Callsign:   f.PayloadCallsign,
		Time:       ts,
		Lat:        f.Lat,
		Lon:        f.Lon,
		Alt:        f.Alt,
		Comment:    f.Comment,
		Modulation: f.Modulation,
		Extra:      extra,
	}, nil
}

// Frames usually carry RFC 3339 timestamps but some uploaders omit the
// zone suffix; those are taken as UTC.
func parseFrameTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}
