// Package engine runs the telemetry processing pipeline: a bounded intake
// queue drained by a single worker that updates per-payload track state,
// tests positions against the configured filter, and dispatches alerts
// directly or via a gated float prediction.
package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratosignals/balloonalert/internal/filter"
	"github.com/stratosignals/balloonalert/internal/logging"
	"github.com/stratosignals/balloonalert/internal/observability"
	"github.com/stratosignals/balloonalert/internal/predict"
	"github.com/stratosignals/balloonalert/internal/store"
	"github.com/stratosignals/balloonalert/model"
)

const (
	defaultQueueSize = 1024
	defaultIdlePoll  = 500 * time.Millisecond
)

// Predictor produces a float trajectory for a payload's latest position.
// *predict.Client satisfies it.
type Predictor interface {
	FloatPrediction(ctx context.Context, req predict.FloatRequest) (*model.PredictionResult, error)
}

// Notifier delivers a rendered alert. *notify.Mailer satisfies it.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// Config holds the engine's behavioural knobs.
type Config struct {
	// PicoballoonOnly discards payloads whose telemetry does not look
	// like a picoballoon (no WSPR marker in comment or modulation).
	PicoballoonOnly bool

	// PredictionsEnabled gates the float-prediction branch entirely.
	PredictionsEnabled bool

	// PredictionMinAltitude is the floor, in metres, below which no
	// prediction is requested.
	PredictionMinAltitude float64

	// PredictionRerun is the minimum interval between predictor calls
	// for the same payload.
	PredictionRerun time.Duration

	// FloatDuration is how many hours forward the float path is predicted.
	FloatDuration float64

	// AlertResend is the minimum interval between alerts for the same
	// payload, shared by both alert kinds.
	AlertResend time.Duration

	// QueueSize bounds the intake queue. Zero selects a default of 1024.
	QueueSize int

	// IdlePoll is how long the worker sleeps when the queue is empty.
	// Zero selects a default of 500ms.
	IdlePoll time.Duration
}

// Engine owns the intake queue, track store and alert state. All track
// mutation happens on the single Run goroutine; Submit is the only method
// safe to call concurrently.
type Engine struct {
	cfg       Config
	filter    *filter.PositionFilter
	store     *store.TrackStore
	predictor Predictor
	notifier  Notifier
	clock     Clock
	log       logging.Logger
	metrics   *observability.EngineCollector
	tracer    trace.Tracer
	queue     chan model.TelemetryEvent
}

// Option customises an Engine at construction time.
type Option func(*Engine)

// WithClock substitutes the wall clock, letting tests steer the cooldowns.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine's logger.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *observability.EngineCollector) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs an engine around the given filter, predictor and notifier.
func New(cfg Config, f *filter.PositionFilter, predictor Predictor, notifier Notifier, opts ...Option) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = defaultIdlePoll
	}
	e := &Engine{
		cfg:       cfg,
		filter:    f,
		store:     store.NewTrackStore(),
		predictor: predictor,
		notifier:  notifier,
		clock:     SystemClock(),
		log:       logging.Noop(),
		tracer:    otel.Tracer("github.com/stratosignals/balloonalert/internal/engine"),
		queue:     make(chan model.TelemetryEvent, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit enqueues an event for the worker without blocking. It returns
// false, and the event is dropped, when the queue is full.
func (e *Engine) Submit(ev model.TelemetryEvent) bool {
	select {
	case e.queue <- ev:
		e.metrics.SetQueueDepth(len(e.queue))
		return true
	default:
		e.metrics.EventDropped()
		e.log.Warn(context.Background(), "intake queue full, dropping event",
			logging.String("callsign", ev.Callsign))
		return false
	}
}

// Run drains the queue until ctx is cancelled, sleeping IdlePoll between
// polls when the queue is empty. On cancellation the worker finishes the
// events already queued before returning; the processing of those events
// is not cut short by the cancellation itself.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info(ctx, "telemetry worker started",
		logging.Int("queue_size", e.cfg.QueueSize),
		logging.String("filter", e.filter.Describe()))

	work := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			e.drain(work)
			e.log.Info(work, "telemetry worker stopped")
			return
		case ev := <-e.queue:
			e.metrics.SetQueueDepth(len(e.queue))
			e.process(work, ev)
		default:
			select {
			case <-ctx.Done():
				e.drain(work)
				e.log.Info(work, "telemetry worker stopped")
				return
			case <-time.After(e.cfg.IdlePoll):
			}
		}
	}
}

func (e *Engine) drain(ctx context.Context) {
	for {
		select {
		case ev := <-e.queue:
			e.process(ctx, ev)
		default:
			return
		}
	}
}

// process handles one event end to end. A panic inside any stage is
// contained here so one malformed payload cannot take the worker down.
func (e *Engine) process(ctx context.Context, ev model.TelemetryEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.EventFault()
			e.log.Error(ctx, "recovered from fault while processing event",
				logging.String("callsign", ev.Callsign),
				logging.Any("panic", r))
		}
	}()

	if e.cfg.PicoballoonOnly && !ev.IsPicoballoon() {
		e.log.Debug(ctx, "discarding non-picoballoon payload",
			logging.String("callsign", ev.Callsign))
		return
	}

	track, created := e.store.GetOrCreate(ev)
	if created {
		e.log.Info(ctx, "tracking new payload",
			logging.String("callsign", ev.Callsign),
			logging.Float64("lat", ev.Lat),
			logging.Float64("lon", ev.Lon),
			logging.Float64("alt_m", ev.Alt))
		e.metrics.SetTrackedPayloads(e.store.Len())
	}
	track.UpdateLatest(ev)

	if e.filter.Contains(ev.Lat, ev.Lon) {
		e.log.Warn(ctx, "payload inside position filter",
			logging.String("callsign", ev.Callsign),
			logging.Float64("lat", ev.Lat),
			logging.Float64("lon", ev.Lon))
		e.maybeAlert(ctx, track, AlertNow, ev.Time, ev)
	} else {
		e.maybePredict(ctx, track, ev)
	}
	e.metrics.EventProcessed()
}

// maybePredict runs a float prediction for the payload when the rerun
// cooldown has lapsed and the payload is high enough, then scans the
// predicted path against the filter. The rerun timer advances whenever a
// predictor call is made, successful or not, so a flaky upstream cannot
// cause a request storm. A payload below the altitude floor does not
// consume the cooldown.
func (e *Engine) maybePredict(ctx context.Context, track *store.TrackState, ev model.TelemetryEvent) {
	if !e.cfg.PredictionsEnabled {
		return
	}
	if e.clock.Now().Sub(track.LastPrediction) <= e.cfg.PredictionRerun {
		e.log.Debug(ctx, "prediction ran too recently",
			logging.String("callsign", ev.Callsign),
			logging.Time("last_prediction", track.LastPrediction))
		return
	}
	if ev.Alt < e.cfg.PredictionMinAltitude {
		e.log.Info(ctx, "payload below prediction altitude floor",
			logging.String("callsign", ev.Callsign),
			logging.Float64("alt_m", ev.Alt),
			logging.Float64("floor_m", e.cfg.PredictionMinAltitude))
		return
	}
	defer func() { track.LastPrediction = e.clock.Now() }()

	start := time.Now()
	pred, err := e.predictor.FloatPrediction(ctx, predict.FloatRequest{
		LaunchTime:    track.LastSeen,
		Lat:           ev.Lat,
		Lon:           ev.Lon,
		Alt:           ev.Alt,
		DurationHours: e.cfg.FloatDuration,
	})
	took := time.Since(start)
	if err != nil {
		e.metrics.PredictionFinished(observability.ResultError, took)
		e.log.Warn(ctx, "float prediction failed",
			logging.String("callsign", ev.Callsign),
			logging.Err(err))
		return
	}
	e.metrics.PredictionFinished(observability.ResultOK, took)
	track.Prediction = pred
	e.log.Debug(ctx, "float prediction complete",
		logging.String("callsign", ev.Callsign),
		logging.String("dataset", pred.Dataset),
		logging.Int("samples", len(pred.Path)))

	if entry, ok := predict.FirstInside(pred.Path, e.filter); ok {
		e.log.Info(ctx, "payload predicted inside position filter",
			logging.String("callsign", ev.Callsign),
			logging.Time("entry_time", entry.Time))
		e.maybeAlert(ctx, track, AlertPrediction, entry.Time, ev)
	}
}

// maybeAlert dispatches an alert unless one was sent for this payload
// within the resend interval. The resend timer advances even when
// delivery fails; a broken mail relay must not retry on every frame.
func (e *Engine) maybeAlert(ctx context.Context, track *store.TrackState, kind AlertKind, when time.Time, ev model.TelemetryEvent) {
	now := e.clock.Now()
	if now.Sub(track.LastAlert) <= e.cfg.AlertResend {
		e.metrics.AlertSuppressed()
		e.log.Info(ctx, "suppressing alert inside resend interval",
			logging.String("callsign", ev.Callsign),
			logging.String("kind", string(kind)),
			logging.Time("last_alert", track.LastAlert))
		return
	}
	track.LastAlert = now

	ctx, span := e.tracer.Start(ctx, "alert.dispatch", trace.WithAttributes(
		attribute.String("callsign", ev.Callsign),
		attribute.String("kind", string(kind)),
	))
	defer span.End()

	subject, body := formatAlert(kind, when, ev)
	e.metrics.AlertSent(string(kind))
	if err := e.notifier.Send(ctx, subject, body); err != nil {
		e.metrics.DeliveryFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Error(ctx, "alert delivery failed",
			logging.String("callsign", ev.Callsign),
			logging.String("kind", string(kind)),
			logging.Err(err))
		return
	}
	e.log.Info(ctx, "alert sent",
		logging.String("callsign", ev.Callsign),
		logging.String("kind", string(kind)))
}

// Tracked reports how many payloads the engine has seen.
func (e *Engine) Tracked() int { return e.store.Len() }
