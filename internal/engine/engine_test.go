package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stratosignals/balloonalert/internal/filter"
	"github.com/stratosignals/balloonalert/internal/predict"
	"github.com/stratosignals/balloonalert/model"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type stubPredictor struct {
	calls  int
	result *model.PredictionResult
	err    error
}

func (p *stubPredictor) FloatPrediction(ctx context.Context, req predict.FloatRequest) (*model.PredictionResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

type panicPredictor struct{}

func (panicPredictor) FloatPrediction(ctx context.Context, req predict.FloatRequest) (*model.PredictionResult, error) {
	panic("predictor exploded")
}

type captureNotifier struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
	err      error
}

func (n *captureNotifier) Send(ctx context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return n.err
}

func (n *captureNotifier) sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subjects)
}

func mustRadius(t *testing.T, lat, lon, km float64) *filter.PositionFilter {
	t.Helper()
	f, err := filter.NewRadius(lat, lon, km)
	if err != nil {
		t.Fatalf("NewRadius: %v", err)
	}
	return f
}

func testConfig() Config {
	return Config{
		PredictionsEnabled:    true,
		PredictionMinAltitude: 5000,
		PredictionRerun:       time.Hour,
		FloatDuration:         48,
		AlertResend:           6 * time.Hour,
	}
}

func event(callsign string, at time.Time, lat, lon, alt float64) model.TelemetryEvent {
	return model.TelemetryEvent{
		Callsign: callsign,
		Time:     at,
		Lat:      lat,
		Lon:      lon,
		Alt:      alt,
		Comment:  "WSPR pico",
	}
}

func TestDirectHitSendsNowAlert(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &captureNotifier{}
	pred := &stubPredictor{}
	e := New(testConfig(), mustRadius(t, 0, 0, 100), pred, notifier, WithClock(clock))

	e.process(context.Background(), event("PICO-1", clock.now, 0, 0, 9000))

	if got := notifier.sent(); got != 1 {
		t.Fatalf("sent %d alerts, want 1", got)
	}
	if !strings.Contains(notifier.subjects[0], "within position filter limits now") {
		t.Fatalf("subject = %q, want a direct-hit subject", notifier.subjects[0])
	}
	if !strings.Contains(notifier.bodies[0], "https://amateur.sondehub.org/?sondehub=1#!mt=Mapnik&mz=4&qm=1d&q=PICO-1") {
		t.Fatalf("body missing SondeHub link:\n%s", notifier.bodies[0])
	}
	if pred.calls != 0 {
		t.Fatalf("predictor called %d times for a direct hit, want 0", pred.calls)
	}
}

func TestAlertResendCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &captureNotifier{}
	e := New(testConfig(), mustRadius(t, 0, 0, 100), &stubPredictor{}, notifier, WithClock(clock))

	e.process(context.Background(), event("PICO-1", clock.now, 0, 0, 9000))
	clock.advance(time.Hour)
	e.process(context.Background(), event("PICO-1", clock.now, 0.1, 0.1, 9000))
	if got := notifier.sent(); got != 1 {
		t.Fatalf("sent %d alerts inside resend interval, want 1", got)
	}

	clock.advance(6 * time.Hour)
	e.process(context.Background(), event("PICO-1", clock.now, 0.1, 0.1, 9000))
	if got := notifier.sent(); got != 2 {
		t.Fatalf("sent %d alerts after resend interval lapsed, want 2", got)
	}
}

func TestAlertCooldownsAreIndependentPerPayload(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &captureNotifier{}
	e := New(testConfig(), mustRadius(t, 0, 0, 100), &stubPredictor{}, notifier, WithClock(clock))

	e.process(context.Background(), event("PICO-1", clock.now, 0, 0, 9000))
	e.process(context.Background(), event("PICO-2", clock.now, 0.2, 0.2, 9000))
	if got := notifier.sent(); got != 2 {
		t.Fatalf("sent %d alerts for two distinct payloads, want 2", got)
	}
}

func TestFailedSendStillConsumesCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &captureNotifier{err: errors.New("relay down")}
	e := New(testConfig(), mustRadius(t, 0, 0, 100), &stubPredictor{}, notifier, WithClock(clock))

	e.process(context.Background(), event("PICO-1", clock.now, 0, 0, 9000))
	clock.advance(time.Minute)
	e.process(context.Background(), event("PICO-1", clock.now, 0, 0, 9000))

	if got := notifier.sent(); got != 1 {
		t.Fatalf("attempted %d sends, want 1; a failed delivery must not retry per frame", got)
	}
}

func TestPredictionRerunCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	pred := &stubPredictor{result: &model.PredictionResult{Dataset: "2024030106z"}}
	e := New(testConfig(), mustRadius(t, 0, 0, 100), pred, &captureNotifier{}, WithClock(clock))

	// Far outside the filter at float altitude.
	e.process(context.Background(), event("PICO-1", clock.now, 45, 45, 9000))
	clock.advance(10 * time.Minute)
	e.process(context.Background(), event("PICO-1", clock.now, 45.1, 45.1, 9000))
	if pred.calls != 1 {
		t.Fatalf("predictor called %d times inside rerun interval, want 1", pred.calls)
	}

	clock.advance(time.Hour)
	e.process(context.Background(), event("PICO-1", clock.now, 45.2, 45.2, 9000))
	if pred.calls != 2 {
		t.Fatalf("predictor called %d times after rerun interval lapsed, want 2", pred.calls)
	}
}

func TestPredictionErrorConsumesCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	pred := &stubPredictor{err: errors.New("upstream 503")}
	e := New(testConfig(), mustRadius(t, 0, 0, 100), pred, &captureNotifier{}, WithClock(clock))

	e.process(context.Background(), event("PICO-1", clock.now, 45, 45, 9000))
	clock.advance(time.Minute)
	e.process(context.Background(), event("PICO-1", clock.now, 45, 45, 9000))

	if pred.calls != 1 {
		t.Fatalf("predictor called %d times, want 1; errors must still consume the rerun cooldown", pred.calls)
	}
}

func TestAltitudeFloorSkipsPredictionWithoutConsumingCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	pred := &stubPredictor{result: &model.PredictionResult{}}
	e := New(testConfig(), mustRadius(t, 0, 0, 100), pred, &captureNotifier{}, WithClock(clock))

	e.process(context.Background(), event("PICO-1", clock.now, 45, 45, 1200))
	if pred.calls != 0 {
		t.Fatalf("predictor called for a payload below the altitude floor")
	}

	// The low pass must not have started the rerun timer.
	clock.advance(time.Minute)
	e.process(context.Background(), event("PICO-1", clock.now, 45, 45, 9000))
	if pred.calls != 1 {
		t.Fatalf("predictor called %d times once the payload climbed, want 1", pred.calls)
	}
}

func TestPredictionsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.PredictionsEnabled = false
	pred := &stubPredictor{}
	e := New(cfg, mustRadius(t, 0, 0, 100), pred, &captureNotifier{})

	e.process(context.Background(), event("PICO-1", time.Now(), 45, 45, 9000))
	if pred.calls != 0 {
		t.Fatalf("predictor called with predictions disabled")
	}
}

func TestPredictedPathEntrySendsPredictionAlert(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	entryTime := clock.now.Add(2 * time.Hour)
	pred := &stubPredictor{result: &model.PredictionResult{
		Dataset: "2024030106z",
		Path: []model.PathPoint{
			{Time: clock.now, Lat: 45, Lon: 45, Alt: 9000},
			{Time: clock.now.Add(time.Hour), Lat: 20, Lon: 20, Alt: 9000},
			{Time: entryTime, Lat: 0.1, Lon: 0.1, Alt: 9000},
			{Time: clock.now.Add(3 * time.Hour), Lat: 0, Lon: 0, Alt: 9000},
		},
	}}
	notifier := &captureNotifier{}
	e := New(testConfig(), mustRadius(t, 0, 0, 100), pred, notifier, WithClock(clock))

	e.process(context.Background(), event("PICO-1", clock.now, 45, 45, 9000))

	if got := notifier.sent(); got != 1 {
		t.Fatalf("sent %d alerts, want 1", got)
	}
	if !strings.Contains(notifier.subjects[0], "predicted to be within position filter limits") {
		t.Fatalf("subject = %q, want a prediction subject", notifier.subjects[0])
	}
	// The alert must carry the first in-filter sample's time, not the closest one.
	if !strings.Contains(notifier.subjects[0], entryTime.UTC().Format(time.RFC3339)) {
		t.Fatalf("subject = %q, want entry time %s", notifier.subjects[0], entryTime.UTC().Format(time.RFC3339))
	}
	if !strings.Contains(notifier.bodies[0], "(Use 'Float' prediction button)") {
		t.Fatalf("prediction body missing the float-profile hint:\n%s", notifier.bodies[0])
	}
}

func TestPicoballoonOnlyDiscardsOtherPayloads(t *testing.T) {
	cfg := testConfig()
	cfg.PicoballoonOnly = true
	pred := &stubPredictor{}
	notifier := &captureNotifier{}
	e := New(cfg, mustRadius(t, 0, 0, 100), pred, notifier)

	ev := event("RS41-1", time.Now(), 0, 0, 9000)
	ev.Comment = "radiosonde"
	e.process(context.Background(), ev)

	if notifier.sent() != 0 || pred.calls != 0 || e.Tracked() != 0 {
		t.Fatalf("non-picoballoon payload was processed: sent=%d calls=%d tracked=%d",
			notifier.sent(), pred.calls, e.Tracked())
	}
}

func TestWorkerSurvivesPanic(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &captureNotifier{}
	e := New(testConfig(), mustRadius(t, 0, 0, 100), panicPredictor{}, notifier, WithClock(clock))

	// Out of the filter, so the panicking predictor runs.
	e.process(context.Background(), event("PICO-1", clock.now, 45, 45, 9000))

	// The engine must still process subsequent events.
	e.process(context.Background(), event("PICO-2", clock.now, 0, 0, 9000))
	if got := notifier.sent(); got != 1 {
		t.Fatalf("sent %d alerts after a recovered fault, want 1", got)
	}
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	e := New(cfg, mustRadius(t, 0, 0, 100), &stubPredictor{}, &captureNotifier{})

	if !e.Submit(event("PICO-1", time.Now(), 45, 45, 9000)) {
		t.Fatalf("first Submit failed on an empty queue")
	}
	if e.Submit(event("PICO-2", time.Now(), 45, 45, 9000)) {
		t.Fatalf("second Submit succeeded on a full queue")
	}
}

func TestRunDrainsQueueOnShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.IdlePoll = 5 * time.Millisecond
	notifier := &captureNotifier{}
	e := New(cfg, mustRadius(t, 0, 0, 100), &stubPredictor{}, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()

	e.Submit(event("PICO-1", time.Now(), 0, 0, 9000))

	deadline := time.Now().Add(2 * time.Second)
	for notifier.sent() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("worker never processed the submitted event")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancellation")
	}
}
