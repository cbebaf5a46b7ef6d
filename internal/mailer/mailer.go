// Package mailer renders and delivers the one-time-code emails sent during
// registration and password reset.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pmapp/authsvc/pkg/logger"
)

// Message is a fully rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a rendered message. Implementations return an error when
// delivery could not be confirmed.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer composes the code emails and hands them to a Sender.
type Mailer struct {
	sender   Sender
	renderer *Renderer
	appName  string
	codeTTL  time.Duration
	logger   *slog.Logger
}

// New creates a Mailer. codeTTL is only used for the "expires in" line.
func New(sender Sender, renderer *Renderer, appName string, codeTTL time.Duration, logger *slog.Logger) *Mailer {
	return &Mailer{
		sender:   sender,
		renderer: renderer,
		appName:  appName,
		codeTTL:  codeTTL,
		logger:   logger,
	}
}

// SendVerificationCode emails the email-verification code.
func (m *Mailer) SendVerificationCode(ctx context.Context, to, name, code string) error {
	subject := fmt.Sprintf("[%s] Verify your email", m.appName)
	return m.send(ctx, TemplateVerifyEmail, to, name, code, subject)
}

// SendPasswordResetCode emails the password-reset code.
func (m *Mailer) SendPasswordResetCode(ctx context.Context, to, name, code string) error {
	subject := fmt.Sprintf("[%s] Reset your password", m.appName)
	return m.send(ctx, TemplateResetPassword, to, name, code, subject)
}

func (m *Mailer) send(ctx context.Context, tmpl, to, name, code, subject string) error {
	if name == "" {
		name = to
	}
	html, text, err := m.renderer.Render(tmpl, TemplateData{
		Subject:        subject,
		AppName:        m.appName,
		Name:           name,
		Code:           code,
		ExpiresMinutes: int(m.codeTTL / time.Minute),
	})
	if err != nil {
		return err
	}

	if err := m.sender.Send(ctx, Message{To: to, Subject: subject, HTML: html, Text: text}); err != nil {
		m.logger.ErrorContext(ctx, "email delivery failed",
			slog.String("template", tmpl),
			slog.String("to", logger.MaskEmail(to)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("send %s email: %w", tmpl, err)
	}

	m.logger.InfoContext(ctx, "email sent",
		slog.String("template", tmpl),
		slog.String("to", logger.MaskEmail(to)),
	)
	return nil
}
