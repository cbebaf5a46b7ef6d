package mailer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/pmapp/authsvc/pkg/breaker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type captureSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

// ---------------------------------------------------------------------------
// Renderer
// ---------------------------------------------------------------------------

func TestRenderer_VerifyEmail(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	html, text, err := r.Render(TemplateVerifyEmail, TemplateData{
		Subject:        "Verify",
		AppName:        "PM App",
		Name:           "Alice",
		Code:           "123456",
		ExpiresMinutes: 10,
	})
	require.NoError(t, err)

	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "123456")
	assert.Contains(t, html, "Hello Alice")
	assert.Contains(t, html, "10 minutes")
	assert.Contains(t, text, "PM App verification code is: 123456")
}

func TestRenderer_EscapesHTML(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	html, text, err := r.Render(TemplateResetPassword, TemplateData{Name: "<script>x</script>", Code: "000111"})
	require.NoError(t, err)

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, text, "<script>x</script>")
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, _, err = r.Render("welcome", TemplateData{})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Mailer
// ---------------------------------------------------------------------------

func newTestMailer(t *testing.T, sender Sender) *Mailer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	return New(sender, r, "PM App", 10*time.Minute, testLogger())
}

func TestMailer_SendVerificationCode(t *testing.T) {
	sender := &captureSender{}
	m := newTestMailer(t, sender)

	require.NoError(t, m.SendVerificationCode(context.Background(), "a@x.com", "Alice", "654321"))

	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, "[PM App] Verify your email", msg.Subject)
	assert.Contains(t, msg.HTML, "654321")
	assert.Contains(t, msg.Text, "654321")
}

func TestMailer_SendPasswordResetCode_FallsBackToEmailForName(t *testing.T) {
	sender := &captureSender{}
	m := newTestMailer(t, sender)

	require.NoError(t, m.SendPasswordResetCode(context.Background(), "a@x.com", "", "111222"))

	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "[PM App] Reset your password", sender.msgs[0].Subject)
	assert.Contains(t, sender.msgs[0].Text, "Hello a@x.com")
}

func TestMailer_SendFailureIsReturned(t *testing.T) {
	boom := errors.New("relay refused")
	m := newTestMailer(t, &captureSender{err: boom})

	err := m.SendVerificationCode(context.Background(), "a@x.com", "Alice", "654321")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

// ---------------------------------------------------------------------------
// SMTPSender
// ---------------------------------------------------------------------------

func TestSMTPSender_BuildsMultipartMessage(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTPSender{dialer: d, from: "PM App <no-reply@pm.app>"}

	err := s.Send(context.Background(), Message{
		To:      "a@x.com",
		Subject: "Hello",
		HTML:    "<p>hi</p>",
		Text:    "hi",
	})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"a@x.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Hello"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "text/plain")
	assert.Contains(t, buf.String(), "text/html")
}

func TestSMTPSender_DialError(t *testing.T) {
	s := &SMTPSender{dialer: &fakeDialer{err: errors.New("connection refused")}, from: "x@pm.app"}

	err := s.Send(context.Background(), Message{To: "a@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp")
}

func TestSMTPSender_CanceledContext(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTPSender{dialer: d, from: "x@pm.app"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Send(ctx, Message{To: "a@x.com"}), context.Canceled)
	assert.Empty(t, d.sent)
}

// ---------------------------------------------------------------------------
// BreakerSender
// ---------------------------------------------------------------------------

func TestBreakerSender_OpensAfterFailures(t *testing.T) {
	cfg := breaker.DefaultConfig("mailer-test")
	cfg.MinRequests = 2
	cfg.Timeout = time.Hour
	inner := &captureSender{err: errors.New("down")}
	s := NewBreakerSender(inner, breaker.New(cfg, testLogger()))

	for i := 0; i < 2; i++ {
		assert.Error(t, s.Send(context.Background(), Message{To: "a@x.com"}))
	}

	inner.err = nil
	err := s.Send(context.Background(), Message{To: "a@x.com"})
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Empty(t, inner.msgs)
}
