// Package ingest consumes the SondeHub amateur telemetry feed over MQTT,
// decodes frames, and hands events to the processing engine.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/stratosignals/balloonalert/internal/logging"
	"github.com/stratosignals/balloonalert/internal/observability"
	"github.com/stratosignals/balloonalert/model"
)

const (
	defaultTopicPrefix  = "amateur"
	defaultKeepAlive    = 30 * time.Second
	defaultReconnectMin = time.Second
	defaultReconnectMax = 2 * time.Minute
)

// EventSink receives decoded telemetry. *engine.Engine satisfies it.
type EventSink interface {
	Submit(ev model.TelemetryEvent) bool
}

// Config holds the consumer's connection settings.
type Config struct {
	// TopicPrefix selects the feed; the consumer subscribes to
	// "<prefix>/#". Empty selects "amateur".
	TopicPrefix string

	// ClientID identifies this session to the broker. Empty generates
	// "balloonalert-<random>".
	ClientID string

	KeepAlive    time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Consumer owns one MQTT subscription and reconnects with capped
// exponential backoff when the session drops.
type Consumer struct {
	cfg     Config
	dial    ConnectionProvider
	sink    EventSink
	log     logging.Logger
	metrics *observability.EngineCollector
}

// NewConsumer wires a consumer to a broker connection and an event sink.
func NewConsumer(cfg Config, dial ConnectionProvider, sink EventSink, log logging.Logger, metrics *observability.EngineCollector) *Consumer {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = defaultTopicPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "balloonalert-" + uuid.NewString()[:8]
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = defaultReconnectMin
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Consumer{cfg: cfg, dial: dial, sink: sink, log: log, metrics: metrics}
}

// Run maintains the subscription until ctx is cancelled. Each dropped
// session doubles the reconnect delay up to ReconnectMax; a session that
// reached the subscribed state resets the delay.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectMin
	for {
		subscribed, err := c.runSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			backoff = c.cfg.ReconnectMin
		}
		c.log.Warn(ctx, "mqtt session ended, reconnecting",
			logging.Err(err),
			logging.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

// runSession connects, subscribes, and blocks until the session fails or
// ctx is cancelled. The first return value reports whether the session
// reached the subscribed state.
func (c *Consumer) runSession(ctx context.Context) (bool, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}

	errCh := make(chan error, 2)
	client := paho.NewClient(paho.ClientConfig{
		ClientID: c.cfg.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			c.onPublish,
		},
		OnClientError: func(err error) {
			select {
			case errCh <- err:
			default:
			}
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			select {
			case errCh <- fmt.Errorf("server disconnect, reason code %d", d.ReasonCode):
			default:
			}
		},
	})

	connack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   c.cfg.ClientID,
		KeepAlive:  uint16(c.cfg.KeepAlive / time.Second),
		CleanStart: true,
	})
	if err != nil {
		conn.Close()
		return false, fmt.Errorf("mqtt connect: %w", err)
	}
	if connack.ReasonCode != 0 {
		conn.Close()
		return false, fmt.Errorf("mqtt connect refused, reason code %d", connack.ReasonCode)
	}

	topic := c.cfg.TopicPrefix + "/#"
	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 0}},
	}); err != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return false, fmt.Errorf("mqtt subscribe %q: %w", topic, err)
	}
	c.log.Info(ctx, "subscribed to telemetry feed",
		logging.String("topic", topic),
		logging.String("client_id", c.cfg.ClientID))

	select {
	case <-ctx.Done():
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return true, ctx.Err()
	case err := <-errCh:
		return true, err
	}
}

func (c *Consumer) onPublish(pr paho.PublishReceived) (bool, error) {
	c.metrics.EventReceived()
	ev, err := DecodeFrame(pr.Packet.Payload)
	if err != nil {
		c.metrics.EventMalformed()
		c.log.Debug(context.Background(), "discarding malformed frame",
			logging.String("topic", pr.Packet.Topic),
			logging.Err(err))
		return true, nil
	}
	c.sink.Submit(ev)
	return true, nil
}
