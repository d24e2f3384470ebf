// Package mailer delivers verification and password-reset tokens over
// SMTP. It implements the engine's TokenSender contract; the engine
// treats delivery as best-effort, so a broken SMTP setup degrades to
// audit noise rather than failed requests.
package mailer

import (
	"context"
	"fmt"
	"net/url"

	"gopkg.in/gomail.v2"

	authgate "github.com/hexlattice/authgate"
)

// Config holds SMTP settings and the public base URL used to build
// token links.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// BaseURL is the externally reachable address of the service,
	// e.g. "https://auth.example.com". Token links are built on it.
	BaseURL string
}

// Validate reports the first missing required field.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("smtp port is required")
	}
	if c.From == "" {
		return fmt.Errorf("smtp from address is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	return nil
}

// Mailer sends token mail over a gomail dialer.
type Mailer struct {
	config Config
	dialer *gomail.Dialer
}

// New builds a Mailer. The dialer connects lazily on first send.
func New(cfg Config) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Mailer{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

// SendToken mails the token to the address, with subject and link
// chosen by purpose.
func (m *Mailer) SendToken(ctx context.Context, email string, purpose authgate.Purpose, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := m.compose(purpose, token)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	return m.dialer.DialAndSend(msg)
}

func (m *Mailer) compose(purpose authgate.Purpose, token string) (subject, body string, err error) {
	escaped := url.QueryEscape(token)

	switch purpose {
	case authgate.PurposeEmailVerify:
		subject = "Verify your email address"
		body = fmt.Sprintf(
			"Confirm your email address by opening this link:\n\n%s/verify-email?token=%s\n\nIf you did not create an account, ignore this message.",
			m.config.BaseURL, escaped,
		)
	case authgate.PurposePasswordReset:
		subject = "Reset your password"
		body = fmt.Sprintf(
			"Reset your password by opening this link:\n\n%s/password-reset?token=%s\n\nIf you did not request a reset, ignore this message. The link expires shortly.",
			m.config.BaseURL, escaped,
		)
	default:
		return "", "", fmt.Errorf("unknown token purpose %d", purpose)
	}

	return subject, body, nil
}

// Noop discards tokens. It is the default sender for deployments that
// have no SMTP configured and for tests.
type Noop struct{}

func (Noop) SendToken(context.Context, string, authgate.Purpose, string) error {
	return nil
}
