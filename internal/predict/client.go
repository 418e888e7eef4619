// Package predict talks to the Tawhiri prediction API and correlates the
// returned flight paths against position filters.
//
// API reference: https://tawhiri.readthedocs.io/en/latest/api.html
package predict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratosignals/balloonalert/internal/logging"
	"github.com/stratosignals/balloonalert/model"
)

// DefaultBaseURL is the public Tawhiri endpoint.
const DefaultBaseURL = "http://api.v2.sondehub.org/tawhiri"

// MaxFloatHours is the predictor's operating ceiling for float predictions.
// Requested durations above it are clamped before the request is issued.
const MaxFloatHours = 120.0

// ErrAPIError marks a provider-reported error payload. Callers treat it the
// same as any other failed attempt: no prediction this cycle.
var ErrAPIError = errors.New("predict: tawhiri reported an error")

// Client is a Tawhiri API client with a bounded request timeout.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     logging.Logger
	tracer  trace.Tracer
}

// NewClient constructs a client. An empty baseURL selects the public
// endpoint; a zero timeout defaults to 10 seconds.
func NewClient(baseURL string, timeout time.Duration, log logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		log:     log,
		tracer:  otel.Tracer("github.com/stratosignals/balloonalert/internal/predict"),
	}
}

// FloatRequest describes a float-profile prediction: sustained flight at a
// roughly constant altitude from the launch state onward.
type FloatRequest struct {
	LaunchTime time.Time
	Lat        float64
	Lon        float64
	Alt        float64 // metres

	// DurationHours is how far forward to predict. Clamped to MaxFloatHours.
	DurationHours float64

	// FloatAltitude is optional; when zero the launch altitude plus one
	// metre is used with a 1 m/s ascent rate, mirroring the predictor's
	// expectations for an already-floating balloon.
	FloatAltitude float64
}

// StandardRequest describes a conventional ascent/burst/descent prediction.
type StandardRequest struct {
	LaunchTime    time.Time
	Lat           float64
	Lon           float64
	Alt           float64
	AscentRate    float64 // m/s
	BurstAltitude float64 // metres
	DescentRate   float64 // m/s
	Dataset       string  // optional explicit model run
}

// Wire shapes for the Tawhiri response. Kept unexported; the exported
// surface is model.PredictionResult.
type apiResponse struct {
	Request    apiRequestEcho `json:"request"`
	Prediction []apiStage     `json:"prediction"`
	Error      *apiError      `json:"error"`
}

type apiRequestEcho struct {
	Dataset string `json:"dataset"`
}

type apiStage struct {
	Stage      string     `json:"stage"`
	Trajectory []apiPoint `json:"trajectory"`
}

type apiPoint struct {
	Datetime  string  `json:"datetime"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

type apiError struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// FloatPrediction requests a float-profile forecast. Any failure (transport,
// malformed response, provider error payload) yields an error; the caller
// treats all of them as "no prediction available this cycle".
func (c *Client) FloatPrediction(ctx context.Context, req FloatRequest) (*model.PredictionResult, error) {
	hours := req.DurationHours
	if hours > MaxFloatHours {
		hours = MaxFloatHours
	}

	launch := req.LaunchTime.UTC()
	stop := launch.Add(time.Duration(hours * float64(time.Hour)))

	floatAlt := req.FloatAltitude
	ascentRate := 5.0
	if floatAlt == 0 {
		// Already floating: a nominal target just above the current
		// altitude keeps the predictor in the float stage immediately.
		floatAlt = req.Alt + 1.0
		ascentRate = 1.0
	}

	params := url.Values{}
	params.Set("launch_latitude", formatFloat(req.Lat))
	params.Set("launch_longitude", formatFloat(eastLongitude(req.Lon)))
	params.Set("launch_altitude", formatFloat(req.Alt))
	params.Set("launch_datetime", launch.Format(time.RFC3339))
	params.Set("stop_datetime", stop.Format(time.RFC3339))
	params.Set("ascent_rate", formatFloat(ascentRate))
	params.Set("float_altitude", formatFloat(floatAlt))
	params.Set("profile", "float_profile")

	ctx, span := c.tracer.Start(ctx, "tawhiri.float_prediction", trace.WithAttributes(
		attribute.Float64("launch.lat", req.Lat),
		attribute.Float64("launch.lon", req.Lon),
		attribute.Float64("launch.alt_m", req.Alt),
		attribute.Float64("duration_hours", hours),
	))
	defer span.End()

	result, err := c.do(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("path.samples", len(result.Path)))
	return result, nil
}

// StandardPrediction requests a conventional ascent/burst/descent forecast.
func (c *Client) StandardPrediction(ctx context.Context, req StandardRequest) (*model.PredictionResult, error) {
	params := url.Values{}
	params.Set("launch_latitude", formatFloat(req.Lat))
	params.Set("launch_longitude", formatFloat(eastLongitude(req.Lon)))
	params.Set("launch_altitude", formatFloat(req.Alt))
	params.Set("launch_datetime", req.LaunchTime.UTC().Format(time.RFC3339))
	params.Set("ascent_rate", formatFloat(req.AscentRate))
	params.Set("descent_rate", formatFloat(req.DescentRate))
	params.Set("burst_altitude", formatFloat(req.BurstAltitude))
	params.Set("profile", "standard_profile")
	if req.Dataset != "" {
		params.Set("dataset", req.Dataset)
	}

	ctx, span := c.tracer.Start(ctx, "tawhiri.standard_prediction", trace.WithAttributes(
		attribute.Float64("launch.lat", req.Lat),
		attribute.Float64("launch.lon", req.Lon),
	))
	defer span.End()

	result, err := c.do(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, params url.Values) (*model.PredictionResult, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	c.log.Debug(ctx, "requesting prediction", logging.String("url", reqURL))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("predict: build request: %w", err)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("predict: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("predict: read response: %w", err)
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("predict: decode response (status %d): %w", resp.StatusCode, err)
	}

	// Tawhiri reports problems in an error payload, usually alongside a
	// non-200 status. The payload is the more descriptive of the two.
	if payload.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrAPIError, payload.Error.Type, payload.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("predict: unexpected status %d", resp.StatusCode)
	}

	return normalise(&payload)
}

// normalise flattens the staged trajectory into a single ordered path,
// shifting the provider's [0, 360) longitudes back to [-180, 180] and
// rendering the dataset timestamp as a compact label.
func normalise(payload *apiResponse) (*model.PredictionResult, error) {
	var path []model.PathPoint
	for _, stage := range payload.Prediction {
		for _, p := range stage.Trajectory {
			at, err := parsePointTime(p.Datetime)
			if err != nil {
				return nil, fmt.Errorf("predict: bad sample time %q: %w", p.Datetime, err)
			}

			lon := p.Longitude
			if lon > 180 {
				lon -= 360
			}

			path = append(path, model.PathPoint{
				Time: at,
				Lat:  p.Latitude,
				Lon:  lon,
				Alt:  p.Altitude,
			})
		}
	}

	return &model.PredictionResult{
		Dataset: datasetLabel(payload.Request.Dataset),
		Path:    path,
	}, nil
}

// datasetLabel renders a dataset timestamp like "2023-05-01T06:00:00" as the
// compact "2023050106z" form used across the tracking tooling. Unparseable
// values pass through untouched rather than failing the whole prediction.
func datasetLabel(raw string) string {
	at, err := parsePointTime(raw)
	if err != nil {
		return raw
	}
	return at.UTC().Format("2006010215") + "z"
}

func parsePointTime(raw string) (time.Time, error) {
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at, nil
	}
	// The API omits the zone designator in some fields; times are UTC.
	return time.Parse("2006-01-02T15:04:05", raw)
}

// eastLongitude shifts a [-180, 180] longitude into the [0, 360) range the
// predictor expects for launch coordinates.
func eastLongitude(lon float64) float64 {
	if lon < 0 {
		return lon + 360
	}
	return lon
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
