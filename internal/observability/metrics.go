package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Alert outcome labels for EngineCollector.Alerts.
const (
	AlertKindNow        = "now"
	AlertKindPrediction = "prediction"
)

// Prediction result labels for EngineCollector.Predictions.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// EngineCollector bundles Prometheus metrics for the alerting engine and
// provides a ready-to-use /metrics handler. All methods tolerate a nil
// receiver so wiring metrics stays optional in tests.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	EventsReceived  prometheus.Counter
	EventsMalformed prometheus.Counter
	EventsDropped   prometheus.Counter
	EventsProcessed prometheus.Counter
	EventFaults     prometheus.Counter

	Predictions        *prometheus.CounterVec
	PredictionDuration prometheus.Histogram

	Alerts           *prometheus.CounterVec
	AlertsSuppressed prometheus.Counter
	DeliveryFailures prometheus.Counter

	QueueDepth      prometheus.Gauge
	TrackedPayloads prometheus.Gauge
}

// NewEngineCollector registers engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &EngineCollector{gatherer: gatherer}
	var err error

	if c.EventsReceived, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_events_received_total",
		Help: "Telemetry frames decoded successfully from the stream.",
	}), "telemetry_events_received_total"); err != nil {
		return nil, err
	}
	if c.EventsMalformed, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_events_malformed_total",
		Help: "Telemetry frames rejected during decoding.",
	}), "telemetry_events_malformed_total"); err != nil {
		return nil, err
	}
	if c.EventsDropped, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_events_dropped_total",
		Help: "Events dropped because the ingestion queue was full.",
	}), "telemetry_events_dropped_total"); err != nil {
		return nil, err
	}
	if c.EventsProcessed, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_events_processed_total",
		Help: "Events fully evaluated by the worker.",
	}), "telemetry_events_processed_total"); err != nil {
		return nil, err
	}
	if c.EventFaults, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_event_faults_total",
		Help: "Unexpected per-event processing faults recovered at the worker boundary.",
	}), "telemetry_event_faults_total"); err != nil {
		return nil, err
	}

	predictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "predictions_total",
		Help: "Predictor invocations, labeled by result.",
	}, []string{"result"})
	if c.Predictions, err = registerCounterVec(reg, predictions, "predictions_total"); err != nil {
		return nil, err
	}
	if c.PredictionDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "prediction_duration_seconds",
		Help:    "Predictor round-trip latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}), "prediction_duration_seconds"); err != nil {
		return nil, err
	}

	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_total",
		Help: "Alerts dispatched, labeled by kind (now or prediction).",
	}, []string{"kind"})
	if c.Alerts, err = registerCounterVec(reg, alerts, "alerts_total"); err != nil {
		return nil, err
	}
	if c.AlertsSuppressed, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerts_suppressed_total",
		Help: "Alerts withheld by the per-payload resend cooldown.",
	}), "alerts_suppressed_total"); err != nil {
		return nil, err
	}
	if c.DeliveryFailures, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alert_delivery_failures_total",
		Help: "Alert notifications that failed to deliver.",
	}), "alert_delivery_failures_total"); err != nil {
		return nil, err
	}

	if c.QueueDepth, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_queue_depth",
		Help: "Events currently waiting in the ingestion queue.",
	}), "ingest_queue_depth"); err != nil {
		return nil, err
	}
	if c.TrackedPayloads, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracked_payloads",
		Help: "Distinct payload callsigns currently held in the track store.",
	}), "tracked_payloads"); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Convenience recorders, nil-safe so the engine can run without metrics.

func (c *EngineCollector) EventReceived() {
	if c != nil {
		c.EventsReceived.Inc()
	}
}

func (c *EngineCollector) EventMalformed() {
	if c != nil {
		c.EventsMalformed.Inc()
	}
}

func (c *EngineCollector) EventDropped() {
	if c != nil {
		c.EventsDropped.Inc()
	}
}

func (c *EngineCollector) EventProcessed() {
	if c != nil {
		c.EventsProcessed.Inc()
	}
}

func (c *EngineCollector) EventFault() {
	if c != nil {
		c.EventFaults.Inc()
	}
}

func (c *EngineCollector) PredictionFinished(result string, took time.Duration) {
	if c == nil {
		return
	}
	c.Predictions.WithLabelValues(result).Inc()
	c.PredictionDuration.Observe(took.Seconds())
}

func (c *EngineCollector) AlertSent(kind string) {
	if c != nil {
		c.Alerts.WithLabelValues(kind).Inc()
	}
}

func (c *EngineCollector) AlertSuppressed() {
	if c != nil {
		c.AlertsSuppressed.Inc()
	}
}

func (c *EngineCollector) DeliveryFailed() {
	if c != nil {
		c.DeliveryFailures.Inc()
	}
}

func (c *EngineCollector) SetQueueDepth(n int) {
	if c != nil {
		c.QueueDepth.Set(float64(n))
	}
}

func (c *EngineCollector) SetTrackedPayloads(n int) {
	if c != nil {
		c.TrackedPayloads.Set(float64(n))
	}
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
