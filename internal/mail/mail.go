// Package mail delivers plain-text mail over SMTP.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gymflow/gym-api/internal/config"

	gomail "github.com/wneessen/go-mail"
)

const dialTimeout = 15 * time.Second

// Message is a single plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

type sendFunc func(ctx context.Context, msg *gomail.Msg) error

// SMTPMailer sends through one SMTP relay, with PLAIN auth when credentials
// are set and STARTTLS whenever the relay offers it.
type SMTPMailer struct {
	from string
	send sendFunc
}

// NewSMTPMailer builds a mailer from configuration. The relay is only
// contacted on Send, so a missing host surfaces as a send error.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		from: cfg.From,
		send: func(ctx context.Context, msg *gomail.Msg) error {
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			return client.DialAndSendWithContext(ctx, msg)
		},
	}
}

func newClient(cfg config.MailConfig) (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(dialTimeout),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	return gomail.NewClient(cfg.Host, opts...)
}

// Send delivers msg.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("mail: header contains line break")
	}
	out, err := m.build(msg)
	if err != nil {
		return err
	}
	if err := m.send(ctx, out); err != nil {
		return fmt.Errorf("mail: send to %s: %w", msg.To, err)
	}
	return nil
}

// build produces the MIME message; headers are RFC 2047 encoded by go-mail.
func (m *SMTPMailer) build(msg Message) (*gomail.Msg, error) {
	out := gomail.NewMsg()
	if err := out.From(m.from); err != nil {
		return nil, fmt.Errorf("mail: sender %q: %w", m.from, err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("mail: recipient %q: %w", msg.To, err)
	}
	out.Subject(msg.Subject)
	out.SetDate()
	out.SetMessageID()
	out.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return out, nil
}
