package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stratosignals/balloonalert/internal/config"
	"github.com/stratosignals/balloonalert/internal/engine"
	"github.com/stratosignals/balloonalert/internal/filter"
	"github.com/stratosignals/balloonalert/internal/ingest"
	"github.com/stratosignals/balloonalert/internal/logging"
	"github.com/stratosignals/balloonalert/internal/notify"
	"github.com/stratosignals/balloonalert/internal/observability"
	"github.com/stratosignals/balloonalert/internal/predict"
)

func main() {
	configPath := flag.String("config", "configs/alert.yaml", "Path to the YAML configuration file")
	verbose := flag.Bool("v", false, "Force debug-level logging regardless of configuration")
	testEmail := flag.Bool("test-email", false, "Send a test notification and exit")
	metricsAddr := flag.String("metrics-addr", "", "Override the Prometheus /metrics listen address")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "balloonalert: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if *verbose {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Format: cfg.Logging.Format})

	mailer, err := notify.NewMailer(cfg.MailerConfig(), log)
	if err != nil {
		log.Error(ctx, "invalid email configuration", logging.Err(err))
		os.Exit(1)
	}

	if *testEmail {
		subject := "BalloonAlert - Test Email"
		body := fmt.Sprintf("This is a test of the BalloonAlert notification path.\nTimestamp: %s\n",
			time.Now().UTC().Format(time.RFC3339))
		if err := mailer.Send(ctx, subject, body); err != nil {
			log.Error(ctx, "test notification failed", logging.Err(err))
			os.Exit(1)
		}
		log.Info(ctx, "test notification sent")
		return
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled || *metricsAddr != "" {
		addr := cfg.Metrics.ListenAddr
		if *metricsAddr != "" {
			addr = *metricsAddr
		}
		metricsSrv = serveMetrics(addr, collector, log)
	}

	posFilter, err := buildFilter(cfg.Filter, log)
	if err != nil {
		log.Error(ctx, "invalid position filter", logging.Err(err))
		os.Exit(1)
	}
	log.Info(ctx, "position filter loaded", logging.String("filter", posFilter.Describe()))

	predictor := predict.NewClient(cfg.Prediction.APIURL, cfg.Prediction.Timeout.Std(), log)

	eng := engine.New(engine.Config{
		PicoballoonOnly:       cfg.Engine.PicoballoonOnly,
		PredictionsEnabled:    cfg.Prediction.Enabled,
		PredictionMinAltitude: cfg.Prediction.MinAltitudeM,
		PredictionRerun:       cfg.Prediction.RerunInterval.Std(),
		FloatDuration:         cfg.Prediction.FloatDurationHours,
		AlertResend:           cfg.Engine.AlertResend.Std(),
		QueueSize:             cfg.Engine.QueueSize,
		IdlePoll:              cfg.Engine.IdlePoll.Std(),
	}, posFilter, predictor, mailer,
		engine.WithLogger(log),
		engine.WithMetrics(collector),
	)

	dial := ingest.TCPConnection(cfg.Feed.BrokerHost, cfg.Feed.BrokerPort)
	if cfg.Feed.TLS {
		dial = ingest.TLSConnection(cfg.Feed.BrokerHost, cfg.Feed.BrokerPort, nil)
	}
	consumer := ingest.NewConsumer(ingest.Config{
		TopicPrefix: cfg.Feed.TopicPrefix,
		ClientID:    cfg.Feed.ClientID,
	}, dial, eng, log, collector)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run(stopCtx)
	}()
	go func() {
		if err := consumer.Run(stopCtx); err != nil && stopCtx.Err() == nil {
			log.Error(ctx, "telemetry consumer exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "balloonalert started",
		logging.String("broker", fmt.Sprintf("%s:%d", cfg.Feed.BrokerHost, cfg.Feed.BrokerPort)))
	<-stopCtx.Done()

	log.Info(ctx, "shutting down")
	<-engineDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(shutdownCtx, shutdownTracing, log)
}

func buildFilter(cfg config.Filter, log logging.Logger) (*filter.PositionFilter, error) {
	switch cfg.Type {
	case "geofence":
		return filter.NewGeofence(cfg.GeofenceFile, log)
	default:
		return filter.NewRadius(cfg.Lat, cfg.Lon, cfg.RadiusKm)
	}
}

func serveMetrics(addr string, collector *observability.EngineCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
