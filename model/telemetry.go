package model

import (
	"strings"
	"time"
)

// TelemetryEvent is one reported observation of a tracked payload. Events are
// immutable once decoded; ownership passes from the stream to the queue to
// the worker.
type TelemetryEvent struct {
	Callsign string
	Time     time.Time // observation time, UTC
	Lat      float64   // degrees
	Lon      float64   // degrees
	Alt      float64   // metres

	// Source-specific fields, used only for classification.
	Comment    string
	Modulation string

	// Extra carries the remaining fields of the source frame untouched so
	// alert bodies can include the full raw report.
	Extra map[string]any
}

// IsPicoballoon reports whether the telemetry looks like a picoballoon
// payload. WSPR-based trackers tag themselves in the comment or the
// modulation field.
func (e TelemetryEvent) IsPicoballoon() bool {
	if strings.Contains(e.Comment, "WSPR") {
		return true
	}
	return strings.Contains(e.Modulation, "WSPR")
}
