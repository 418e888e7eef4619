package filter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/stratosignals/balloonalert/core"
	"github.com/stratosignals/balloonalert/internal/logging"
)

// NewGeofence loads a geofence filter from a line-oriented coordinate file.
// See NewGeofenceFromReader for the format.
func NewGeofence(path string, log logging.Logger) (*PositionFilter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filter: open geofence file: %w", err)
	}
	defer f.Close()

	pf, err := NewGeofenceFromReader(f, log)
	if err != nil {
		return nil, fmt.Errorf("filter: geofence file %q: %w", path, err)
	}
	return pf, nil
}

// NewGeofenceFromReader parses a geofence ring from UTF-8 text, one vertex
// per line as "lat,lon". Lines starting with '#' are comments; fields after
// the first two are ignored. A line that fails to parse is logged and
// skipped rather than rejecting the whole file. Longitudes above 180 degrees
// are reduced by 360 before storage. Construction fails with ErrNoVertices
// when nothing usable remains.
func NewGeofenceFromReader(r io.Reader, log logging.Logger) (*PositionFilter, error) {
	if log == nil {
		log = logging.Noop()
	}
	ctx := context.Background()

	var ring []core.LatLon

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		vertex, err := parseVertex(line)
		if err != nil {
			log.Warn(ctx, "skipping unparseable geofence line",
				logging.Int("line", lineNo),
				logging.String("content", line),
				logging.Err(err),
			)
			continue
		}
		ring = append(ring, vertex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	if len(ring) == 0 {
		return nil, ErrNoVertices
	}

	log.Debug(ctx, "geofence loaded", logging.Int("vertices", len(ring)))

	return &PositionFilter{kind: KindGeofence, ring: ring}, nil
}

func parseVertex(line string) (core.LatLon, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return core.LatLon{}, fmt.Errorf("want at least lat,lon, got %d field(s)", len(fields))
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return core.LatLon{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return core.LatLon{}, fmt.Errorf("longitude: %w", err)
	}

	if lon > 180 {
		lon -= 360
	}

	return core.LatLon{Lat: lat, Lon: lon}, nil
}
