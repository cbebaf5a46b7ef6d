// Package event publishes auth domain events. Publishing is best-effort:
// failures are logged and never surface to the caller.
package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/pmapp/authsvc/pkg/kafka"
	"github.com/pmapp/authsvc/pkg/logger"
)

// Event types.
const (
	UserRegistered    = "user.registered"
	UserVerified      = "user.verified"
	UserLoggedIn      = "user.logged_in"
	UserPasswordReset = "user.password_reset"
)

const source = "auth-service"

// UserPayload is the data carried by every user event. It never includes
// credentials or codes.
type UserPayload struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccountType string    `json:"account_type,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher is the subset of kafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Emitter is what the auth service calls after a successful operation.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload UserPayload)
}

// Producer maps event types onto topics and publishes them.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates an Emitter backed by publisher.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// Emit publishes one event. The request's correlation ID travels with it.
func (p *Producer) Emit(ctx context.Context, eventType string, payload UserPayload) {
	evt, err := kafka.NewEvent(eventType, payload.UserID, source, payload.OccurredAt, payload,
		kafka.WithCorrelation(logger.CorrelationIDFromContext(ctx)),
	)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := p.publisher.Publish(ctx, TopicFor(eventType), evt); err != nil {
		p.logger.WarnContext(ctx, "event dropped",
			slog.String("event_type", eventType),
			slog.String("user_id", payload.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// TopicFor returns the topic an event type is written to.
func TopicFor(eventType string) string {
	switch eventType {
	case UserRegistered:
		return kafka.Topic("user", "registered")
	case UserVerified:
		return kafka.Topic("user", "verified")
	case UserLoggedIn:
		return kafka.Topic("user", "logged-in")
	case UserPasswordReset:
		return kafka.Topic("user", "password-reset")
	default:
		return kafka.Topic("user", "other")
	}
}

// Noop discards events. Used when EVENTS_ENABLED is false.
type Noop struct{}

// Emit implements Emitter.
func (Noop) Emit(context.Context, string, UserPayload) {}
