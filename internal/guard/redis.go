package guard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failKeyPrefix = "auth:login:fail:"
	lockKeyPrefix = "auth:login:lock:"
	otpKeyPrefix  = "auth:otp:sent:"
)

// ErrBackendUnavailable wraps Redis failures.
var ErrBackendUnavailable = errors.New("guard backend unavailable")

// Redis is a Guard shared by every instance pointing at the same Redis.
// Lock expiry is enforced by key TTLs.
type Redis struct {
	client    redis.UniversalClient
	retention time.Duration
	now       func() time.Time
}

// NewRedis creates a Redis-backed guard. retention bounds how long idle
// failure counters and resend timestamps survive.
func NewRedis(client redis.UniversalClient, retention time.Duration) *Redis {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Redis{client: client, retention: retention, now: time.Now}
}

// CheckOtpCooldown reports whether a code was sent to identifier within cooldown.
func (r *Redis) CheckOtpCooldown(ctx context.Context, identifier string, cooldown time.Duration) (Cooldown, error) {
	ms, err := r.client.Get(ctx, otpKeyPrefix+identifier).Int64()
	if errors.Is(err, redis.Nil) {
		return Cooldown{Allowed: true}, nil
	}
	if err != nil {
		return Cooldown{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	elapsed := r.now().Sub(time.UnixMilli(ms))
	if elapsed < cooldown {
		return Cooldown{Allowed: false, RetryAfter: cooldown - elapsed}, nil
	}
	return Cooldown{Allowed: true}, nil
}

// MarkOtpSent records that a code was just sent to identifier.
func (r *Redis) MarkOtpSent(ctx context.Context, identifier string) error {
	ts := strconv.FormatInt(r.now().UnixMilli(), 10)
	if err := r.client.Set(ctx, otpKeyPrefix+identifier, ts, r.retention).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// RegisterFailedLogin increments the failure counter unless the identifier
// is already locked. Reaching the threshold sets the lock key and drops the
// counter, so counting restarts from zero once the lock expires.
func (r *Redis) RegisterFailedLogin(ctx context.Context, identifier string, policy LockoutPolicy) (Attempt, error) {
	lockKey := lockKeyPrefix + identifier
	failKey := failKeyPrefix + identifier

	state, err := r.IsLoginLocked(ctx, identifier)
	if err != nil {
		return Attempt{}, err
	}
	if state.Locked {
		return Attempt{Count: policy.Threshold, LockedUntil: r.now().Add(state.RetryAfter)}, nil
	}

	count, err := r.client.Incr(ctx, failKey).Result()
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, failKey, r.retention).Err(); err != nil {
			return Attempt{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if count < int64(policy.Threshold) {
		return Attempt{Count: int(count)}, nil
	}

	lockedUntil := r.now().Add(policy.Duration)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, lockKey, strconv.FormatInt(lockedUntil.UnixMilli(), 10), policy.Duration)
		pipe.Del(ctx, failKey)
		return nil
	})
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return Attempt{Count: int(count), LockedUntil: lockedUntil}, nil
}

// IsLoginLocked reports the lock state; the lock key TTL is the remaining lockout.
func (r *Redis) IsLoginLocked(ctx context.Context, identifier string) (LockState, error) {
	ttl, err := r.client.PTTL(ctx, lockKeyPrefix+identifier).Result()
	if err != nil {
		return LockState{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	// PTTL reports -2 for a missing key and -1 for a key without expiry.
	if ttl <= 0 {
		return LockState{}, nil
	}
	return LockState{Locked: true, RetryAfter: ttl}, nil
}

// ResetLoginAttempts deletes the failure counter and the lock key.
func (r *Redis) ResetLoginAttempts(ctx context.Context, identifier string) error {
	if err := r.client.Del(ctx, failKeyPrefix+identifier, lockKeyPrefix+identifier).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
