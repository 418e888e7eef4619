// Package notify delivers alert notifications over SMTP.
//
// Delivery is best effort: the engine's alert cooldown advances whether or
// not the transport succeeds, so failures here are logged and surfaced but
// never retried.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/stratosignals/balloonalert/internal/logging"
)

// Security modes for the SMTP connection.
const (
	SecurityNone = "none"
	SecurityTLS  = "tls" // STARTTLS
	SecuritySSL  = "ssl" // implicit TLS on connect
)

// ErrInvalidSecurity marks an unknown security mode in the configuration.
var ErrInvalidSecurity = errors.New("notify: security must be none, tls or ssl")

// ErrNoRecipients marks an enabled mailer with an empty recipient list.
var ErrNoRecipients = errors.New("notify: no recipients configured")

// Config holds the SMTP transport settings.
type Config struct {
	Enabled  bool
	Server   string
	Port     int
	Security string // none | tls | ssl
	Username string // empty disables authentication
	Password string
	From     string
	To       string // ";"-separated recipient list
}

// Validate reports configuration errors that should be fatal at startup.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch strings.ToLower(c.Security) {
	case SecurityNone, SecurityTLS, SecuritySSL:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidSecurity, c.Security)
	}
	if c.Server == "" {
		return errors.New("notify: smtp server not set")
	}
	if c.From == "" {
		return errors.New("notify: from address not set")
	}
	if len(Recipients(c.To)) == 0 {
		return ErrNoRecipients
	}
	return nil
}

// Recipients splits a ";"-separated recipient list, dropping empty entries.
func Recipients(list string) []string {
	var out []string
	for _, r := range strings.Split(list, ";") {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Mailer sends plain-text notifications to a fixed recipient list.
type Mailer struct {
	cfg Config
	log logging.Logger
}

// NewMailer validates the configuration and constructs a mailer.
func NewMailer(cfg Config, log logging.Logger) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Mailer{cfg: cfg, log: log}, nil
}

// Send delivers the message to every configured recipient in turn. Each
// recipient is attempted even when an earlier one fails; the first error is
// returned so callers can count the failure.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	if !m.cfg.Enabled {
		m.log.Info(ctx, "notifications disabled; not sending", logging.String("subject", subject))
		return nil
	}

	client, err := m.newClient()
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}

	var firstErr error
	for _, recipient := range Recipients(m.cfg.To) {
		msg := mail.NewMsg()
		if err := msg.From(m.cfg.From); err != nil {
			return fmt.Errorf("notify: from address %q: %w", m.cfg.From, err)
		}
		if err := msg.To(recipient); err != nil {
			m.log.Warn(ctx, "invalid recipient address",
				logging.String("recipient", recipient), logging.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		msg.Subject(subject)
		msg.SetBodyString(mail.TypeTextPlain, body)

		if err := client.DialAndSendWithContext(ctx, msg); err != nil {
			m.log.Warn(ctx, "notification delivery failed",
				logging.String("recipient", recipient), logging.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		m.log.Info(ctx, "notification sent", logging.String("recipient", recipient))
	}

	return firstErr
}

func (m *Mailer) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
	}

	switch strings.ToLower(m.cfg.Security) {
	case SecuritySSL:
		opts = append(opts, mail.WithSSL())
	case SecurityTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	return mail.NewClient(m.cfg.Server, opts...)
}
