// Package config loads and validates the YAML configuration file. A bad
// config is a startup failure; nothing here is reloaded at runtime.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stratosignals/balloonalert/internal/notify"
)

// Duration parses Go duration strings ("90s", "6h") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Feed configures the MQTT telemetry subscription.
type Feed struct {
	BrokerHost  string `yaml:"broker_host"`
	BrokerPort  int    `yaml:"broker_port"`
	TLS         bool   `yaml:"tls"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// Filter selects and parameterises the position filter.
type Filter struct {
	// Type is "radius" or "geofence".
	Type         string  `yaml:"type"`
	Lat          float64 `yaml:"lat"`
	Lon          float64 `yaml:"lon"`
	RadiusKm     float64 `yaml:"radius_km"`
	GeofenceFile string  `yaml:"geofence_file"`
}

// Engine configures the processing worker.
type Engine struct {
	PicoballoonOnly bool     `yaml:"picoballoon_only"`
	AlertResend     Duration `yaml:"alert_resend"`
	QueueSize       int      `yaml:"queue_size"`
	IdlePoll        Duration `yaml:"idle_poll"`
}

// Prediction configures the float predictor and its gates.
type Prediction struct {
	Enabled            bool     `yaml:"enabled"`
	APIURL             string   `yaml:"api_url"`
	Timeout            Duration `yaml:"timeout"`
	MinAltitudeM       float64  `yaml:"min_altitude_m"`
	RerunInterval      Duration `yaml:"rerun_interval"`
	FloatDurationHours float64  `yaml:"float_duration_hours"`
}

// Email configures SMTP alert delivery. To holds ";"-separated recipients.
type Email struct {
	Enabled  bool   `yaml:"enabled"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Security string `yaml:"security"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Logging configures log output.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root of the configuration file.
type Config struct {
	Logging    Logging    `yaml:"logging"`
	Feed       Feed       `yaml:"feed"`
	Filter     Filter     `yaml:"filter"`
	Engine     Engine     `yaml:"engine"`
	Prediction Prediction `yaml:"prediction"`
	Email      Email      `yaml:"email"`
	Metrics    Metrics    `yaml:"metrics"`
}

// Defaults match the public SondeHub amateur feed and the behaviour of a
// conservatively rate-limited alerter.
func Default() Config {
	return Config{
		Logging: Logging{Level: "info", Format: "text"},
		Feed: Feed{
			BrokerHost:  "ws-reader.v2.sondehub.org",
			BrokerPort:  1883,
			TopicPrefix: "amateur",
		},
		Engine: Engine{
			PicoballoonOnly: true,
			AlertResend:     Duration(6 * time.Hour),
			QueueSize:       1024,
			IdlePoll:        Duration(500 * time.Millisecond),
		},
		Prediction: Prediction{
			Enabled:            true,
			Timeout:            Duration(10 * time.Second),
			MinAltitudeM:       5000,
			RerunInterval:      Duration(time.Hour),
			FloatDurationHours: 48,
		},
		Email:   Email{Security: "tls", Port: 587},
		Metrics: Metrics{ListenAddr: ":9090"},
	}
}

// Load reads path, overlays it on the defaults, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the cross-field constraints Load cannot express in types.
func (c *Config) Validate() error {
	if c.Feed.BrokerHost == "" {
		return errors.New("feed.broker_host is required")
	}
	if c.Feed.BrokerPort <= 0 || c.Feed.BrokerPort > 65535 {
		return fmt.Errorf("feed.broker_port %d out of range", c.Feed.BrokerPort)
	}

	switch c.Filter.Type {
	case "radius":
		if c.Filter.RadiusKm <= 0 {
			return errors.New("filter.radius_km must be positive")
		}
	case "geofence":
		if c.Filter.GeofenceFile == "" {
			return errors.New("filter.geofence_file is required")
		}
	default:
		return fmt.Errorf("filter.type %q is not one of radius, geofence", c.Filter.Type)
	}

	if c.Prediction.Enabled {
		if c.Prediction.FloatDurationHours <= 0 {
			return errors.New("prediction.float_duration_hours must be positive")
		}
		if c.Prediction.RerunInterval.Std() <= 0 {
			return errors.New("prediction.rerun_interval must be positive")
		}
	}
	if c.Engine.AlertResend.Std() <= 0 {
		return errors.New("engine.alert_resend must be positive")
	}

	mailCfg := c.MailerConfig()
	if err := mailCfg.Validate(); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}

// MailerConfig projects the email section into the notifier's config type.
func (c *Config) MailerConfig() notify.Config {
	return notify.Config{
		Enabled:  c.Email.Enabled,
		Server:   c.Email.Server,
		Port:     c.Email.Port,
		Security: c.Email.Security,
		Username: c.Email.Username,
		Password: c.Email.Password,
		From:     c.Email.From,
		To:       c.Email.To,
	}
}
