package ingest

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeFrame(t *testing.T) {
	payload := []byte(`{
		"payload_callsign": "PICO-1",
		"datetime": "2024-03-01T12:34:56Z",
		"lat": 52.5,
		"lon": -1.25,
		"alt": 11500,
		"comment": "WSPR pico flight",
		"modulation": "Horus Binary",
		"frequency": 434.71,
		"uploader_callsign": "RX-STATION"
	}`)

	ev, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if ev.Callsign != "PICO-1" {
		t.Fatalf("Callsign = %q", ev.Callsign)
	}
	want := time.Date(2024, 3, 1, 12, 34, 56, 0, time.UTC)
	if !ev.Time.Equal(want) {
		t.Fatalf("Time = %v, want %v", ev.Time, want)
	}
	if ev.Lat != 52.5 || ev.Lon != -1.25 || ev.Alt != 11500 {
		t.Fatalf("position = %v,%v,%v", ev.Lat, ev.Lon, ev.Alt)
	}
	if !ev.IsPicoballoon() {
		t.Fatalf("WSPR comment not recognised as picoballoon")
	}
	if ev.Extra["uploader_callsign"] != "RX-STATION" {
		t.Fatalf("Extra missing passthrough field: %v", ev.Extra)
	}
	if _, ok := ev.Extra["payload_callsign"]; ok {
		t.Fatalf("Extra still carries a consumed field: %v", ev.Extra)
	}
}

func TestDecodeFrameNaiveTimestamp(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"payload_callsign":"PICO-1","datetime":"2024-03-01T12:34:56","lat":1,"lon":2,"alt":3}`))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	want := time.Date(2024, 3, 1, 12, 34, 56, 0, time.UTC)
	if !ev.Time.Equal(want) {
		t.Fatalf("Time = %v, want %v taken as UTC", ev.Time, want)
	}
}

func TestDecodeFrameRejectsIncomplete(t *testing.T) {
	if _, err := DecodeFrame([]byte(`{"datetime":"2024-03-01T12:34:56Z"}`)); !errors.Is(err, ErrMissingCallsign) {
		t.Fatalf("missing callsign: err = %v", err)
	}
	if _, err := DecodeFrame([]byte(`{"payload_callsign":"PICO-1"}`)); !errors.Is(err, ErrMissingTime) {
		t.Fatalf("missing datetime: err = %v", err)
	}
	if _, err := DecodeFrame([]byte(`not json`)); err == nil {
		t.Fatalf("malformed payload decoded without error")
	}
	if _, err := DecodeFrame([]byte(`{"payload_callsign":"PICO-1","datetime":"yesterday"}`)); err == nil {
		t.Fatalf("unparseable datetime decoded without error")
	}
}
