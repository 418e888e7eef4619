package notify

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stratosignals/balloonalert/internal/logging"
)

func TestRecipients(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a@example.com", []string{"a@example.com"}},
		{"a@example.com;b@example.com", []string{"a@example.com", "b@example.com"}},
		{" a@example.com ; ;b@example.com;", []string{"a@example.com", "b@example.com"}},
	}

	for _, tc := range cases {
		if got := Recipients(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Recipients(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{
		Enabled:  true,
		Server:   "smtp.example.com",
		Port:     587,
		Security: "tls",
		From:     "alert@example.com",
		To:       "me@example.com",
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := base
	bad.Security = "starttls"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidSecurity) {
		t.Fatalf("err = %v, want ErrInvalidSecurity", err)
	}

	bad = base
	bad.To = " ; "
	if err := bad.Validate(); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("err = %v, want ErrNoRecipients", err)
	}

	// A disabled mailer needs no transport settings at all.
	disabled := Config{Enabled: false}
	if err := disabled.Validate(); err != nil {
		t.Fatalf("disabled config rejected: %v", err)
	}
}

func TestSendDisabledIsNoop(t *testing.T) {
	m, err := NewMailer(Config{Enabled: false}, logging.Noop())
	if err != nil {
		t.Fatalf("NewMailer: %v", err)
	}
	if err := m.Send(context.Background(), "subject", "body"); err != nil {
		t.Fatalf("disabled Send must not error, got %v", err)
	}
}
