package event

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pmapp/authsvc/pkg/kafka"
	"github.com/pmapp/authsvc/pkg/logger"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event *kafka.Event) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProducer_Emit(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, testLogger())
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	pub.On("Publish", mock.Anything, "pmapp.user.registered", mock.MatchedBy(func(e *kafka.Event) bool {
		var payload UserPayload
		if err := e.DecodeData(&payload); err != nil {
			return false
		}
		return e.Type == UserRegistered &&
			e.Key == "u-1" &&
			e.CorrelationID == "corr-1" &&
			payload.Email == "a@x.com" &&
			e.OccurredAt.Equal(at)
	})).Return(nil).Once()

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	p.Emit(ctx, UserRegistered, UserPayload{UserID: "u-1", Email: "a@x.com", OccurredAt: at})

	pub.AssertExpectations(t)
}

func TestProducer_EmitSwallowsPublishError(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, testLogger())
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	require.NotPanics(t, func() {
		p.Emit(context.Background(), UserLoggedIn, UserPayload{UserID: "u-1"})
	})
	pub.AssertExpectations(t)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "pmapp.user.registered", TopicFor(UserRegistered))
	assert.Equal(t, "pmapp.user.verified", TopicFor(UserVerified))
	assert.Equal(t, "pmapp.user.logged-in", TopicFor(UserLoggedIn))
	assert.Equal(t, "pmapp.user.password-reset", TopicFor(UserPasswordReset))
}

func TestNoop(t *testing.T) {
	var e Emitter = Noop{}
	assert.NotPanics(t, func() { e.Emit(context.Background(), UserVerified, UserPayload{}) })
}
