package mailer

import (
	"context"

	"github.com/pmapp/authsvc/pkg/breaker"
)

// BreakerSender fails fast while the underlying relay keeps failing.
type BreakerSender struct {
	next Sender
	cb   *breaker.Breaker
}

// NewBreakerSender wraps next with cb.
func NewBreakerSender(next Sender, cb *breaker.Breaker) *BreakerSender {
	return &BreakerSender{next: next, cb: cb}
}

// Send implements Sender.
func (b *BreakerSender) Send(ctx context.Context, msg Message) error {
	return b.cb.Do(ctx, func(ctx context.Context) error {
		return b.next.Send(ctx, msg)
	})
}
