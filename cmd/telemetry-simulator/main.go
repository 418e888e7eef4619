// Command telemetry-simulator publishes synthetic amateur telemetry frames
// to an MQTT broker, useful for exercising a balloonalert instance without
// waiting for a real flight.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type frame struct {
	PayloadCallsign string  `json:"payload_callsign"`
	Datetime        string  `json:"datetime"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	Alt             float64 `json:"alt"`
	Comment         string  `json:"comment"`
	Modulation      string  `json:"modulation"`
	Frequency       float64 `json:"frequency"`
}

func main() {
	broker := flag.String("broker", "localhost:1883", "MQTT broker to publish to, host:port")
	prefix := flag.String("prefix", "amateur", "Topic prefix; frames publish to <prefix>/<modulation>/<callsign>")
	callsign := flag.String("callsign", "SIM-PICO-1", "Payload callsign")
	lat := flag.Float64("lat", 52.0, "Starting latitude in degrees")
	lon := flag.Float64("lon", 0.0, "Starting longitude in degrees")
	alt := flag.Float64("alt", 11500, "Float altitude in metres")
	driftLat := flag.Float64("drift-lat", 0.0, "Latitude drift per frame in degrees")
	driftLon := flag.Float64("drift-lon", 0.05, "Longitude drift per frame in degrees")
	interval := flag.Duration("interval", 10*time.Second, "Delay between frames")
	count := flag.Int("count", 0, "Number of frames to publish; 0 runs until interrupted")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", *broker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry-simulator: dialing %s: %v\n", *broker, err)
		os.Exit(1)
	}

	clientID := "telemetry-sim-" + uuid.NewString()[:8]
	client := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
	})
	if _, err := client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  30,
		CleanStart: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry-simulator: mqtt connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect(&paho.Disconnect{ReasonCode: 0})

	modulation := "Horus Binary"
	topic := *prefix + "/" + strings.ToLower(strings.ReplaceAll(modulation, " ", "-")) + "/" + *callsign

	published := 0
	curLat, curLon := *lat, *lon
	for {
		f := frame{
			PayloadCallsign: *callsign,
			Datetime:        time.Now().UTC().Format(time.RFC3339),
			Lat:             curLat,
			Lon:             curLon,
			Alt:             *alt,
			Comment:         "WSPR simulated flight",
			Modulation:      modulation,
			Frequency:       434.71,
		}
		payload, err := json.Marshal(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry-simulator: encoding frame: %v\n", err)
			os.Exit(1)
		}
		if _, err := client.Publish(ctx, &paho.Publish{
			Topic:   topic,
			QoS:     0,
			Payload: payload,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry-simulator: publish: %v\n", err)
			os.Exit(1)
		}
		published++
		fmt.Printf("published frame %d: %s at %s,%s alt=%sm\n",
			published, *callsign,
			strconv.FormatFloat(curLat, 'f', 4, 64),
			strconv.FormatFloat(curLon, 'f', 4, 64),
			strconv.FormatFloat(*alt, 'f', 0, 64))

		if *count > 0 && published >= *count {
			return
		}
		curLat += *driftLat
		curLon += *driftLon
		if curLon > 180 {
			curLon -= 360
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(*interval):
		}
	}
}
