package engine

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/stratosignals/balloonalert/model"
)

// AlertKind distinguishes an alert raised for an observed position from
// one raised for a predicted future position.
type AlertKind string

const (
	// AlertNow means the latest reported position is inside the filter.
	AlertNow AlertKind = "now"
	// AlertPrediction means the predicted float path crosses the filter.
	AlertPrediction AlertKind = "prediction"
)

func sondehubLink(callsign string) string {
	return "https://amateur.sondehub.org/?sondehub=1#!mt=Mapnik&mz=4&qm=1d&q=" + url.QueryEscape(callsign)
}

// formatAlert renders the notification subject and body for an alert.
// when is the observation time for AlertNow and the predicted filter
// entry time for AlertPrediction.
func formatAlert(kind AlertKind, when time.Time, ev model.TelemetryEvent) (subject, body string) {
	stamp := when.UTC().Format(time.RFC3339)

	var b strings.Builder
	switch kind {
	case AlertPrediction:
		subject = fmt.Sprintf("BalloonAlert - %s predicted to be within position filter limits at %s.", ev.Callsign, stamp)
		fmt.Fprintf(&b, "Payload %s predicted within position filter limits at %s\n", ev.Callsign, stamp)
		fmt.Fprintf(&b, "SondeHub-Amateur Link: %s\n", sondehubLink(ev.Callsign))
		b.WriteString("(Use 'Float' prediction button)\n")
	default:
		subject = fmt.Sprintf("BalloonAlert - %s is within position filter limits now!", ev.Callsign)
		fmt.Fprintf(&b, "Payload %s observed within position filter limits at %s\n", ev.Callsign, stamp)
		fmt.Fprintf(&b, "SondeHub-Amateur Link: %s\n", sondehubLink(ev.Callsign))
	}

	fmt.Fprintf(&b, "\n\n\nLast Telemetry: callsign=%s time=%s lat=%.5f lon=%.5f alt=%.0fm",
		ev.Callsign, ev.Time.UTC().Format(time.RFC3339), ev.Lat, ev.Lon, ev.Alt)
	if ev.Comment != "" {
		fmt.Fprintf(&b, " comment=%q", ev.Comment)
	}
	if ev.Modulation != "" {
		fmt.Fprintf(&b, " modulation=%q", ev.Modulation)
	}
	return subject, b.String()
}
