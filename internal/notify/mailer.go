package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// LogMailer stands in for SMTP in development.
type LogMailer struct {
	Logger *logger.Logger
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.Logger.Info("MAIL", fmt.Sprintf("to=%s subject=%q body=%q", to, subject, body))
	return nil
}

// NewMailer picks SMTP when a host is configured.
func NewMailer(cfg config.EmailConfig, log *logger.Logger) Mailer {
	if cfg.SMTPHost == "" {
		log.Warn("MAIL", "SMTP_HOST not set, mail will only be logged")
		return &LogMailer{Logger: log}
	}
	return NewSMTPMailer(cfg)
}
