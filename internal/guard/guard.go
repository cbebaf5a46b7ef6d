// Package guard throttles OTP resends and locks out identifiers after
// repeated failed logins. Counters are keyed by identifier (the normalized
// email), not by client address.
package guard

import (
	"context"
	"time"
)

// LockoutPolicy configures when an identifier gets locked.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy locks after 5 failures for 5 minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 5, Duration: 5 * time.Minute}
}

// Cooldown is the outcome of an OTP resend check.
type Cooldown struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Attempt is the counter state after a failed login. LockedUntil is zero
// while the identifier is not locked.
type Attempt struct {
	Count       int
	LockedUntil time.Time
}

// Locked reports whether the attempt put the identifier under lockout.
func (a Attempt) Locked() bool { return !a.LockedUntil.IsZero() }

// LockState reports whether login is currently blocked for an identifier.
type LockState struct {
	Locked     bool
	RetryAfter time.Duration
}

// Guard is implemented by the in-memory and Redis backends.
type Guard interface {
	CheckOtpCooldown(ctx context.Context, identifier string, cooldown time.Duration) (Cooldown, error)
	MarkOtpSent(ctx context.Context, identifier string) error
	RegisterFailedLogin(ctx context.Context, identifier string, policy LockoutPolicy) (Attempt, error)
	IsLoginLocked(ctx context.Context, identifier string) (LockState, error)
	ResetLoginAttempts(ctx context.Context, identifier string) error
}
