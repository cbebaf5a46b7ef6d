package guard

import (
	"context"
	"sync"
	"time"
)

type loginEntry struct {
	count       int
	lastFailure time.Time
	lockedUntil time.Time
}

// Memory is a process-local Guard. State is lost on restart and is not
// shared between instances.
type Memory struct {
	mu        sync.Mutex
	otpSent   map[string]time.Time
	logins    map[string]*loginEntry
	retention time.Duration
	now       func() time.Time
}

// MemoryOption customizes a Memory guard.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithRetention sets how long idle entries are kept before Prune drops them.
func WithRetention(d time.Duration) MemoryOption {
	return func(m *Memory) { m.retention = d }
}

// NewMemory creates an empty in-memory guard.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		otpSent:   make(map[string]time.Time),
		logins:    make(map[string]*loginEntry),
		retention: 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckOtpCooldown reports whether a code was sent to identifier within cooldown.
func (m *Memory) CheckOtpCooldown(_ context.Context, identifier string, cooldown time.Duration) (Cooldown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sent, ok := m.otpSent[identifier]
	if !ok {
		return Cooldown{Allowed: true}, nil
	}
	elapsed := m.now().Sub(sent)
	if elapsed < cooldown {
		return Cooldown{Allowed: false, RetryAfter: cooldown - elapsed}, nil
	}
	return Cooldown{Allowed: true}, nil
}

// MarkOtpSent records that a code was just sent to identifier.
func (m *Memory) MarkOtpSent(_ context.Context, identifier string) error {
	m.mu.Lock()
	m.otpSent[identifier] = m.now()
	m.mu.Unlock()
	return nil
}

// RegisterFailedLogin counts a failure. While locked the counter is frozen
// and the existing lock is returned unchanged.
func (m *Memory) RegisterFailedLogin(_ context.Context, identifier string, policy LockoutPolicy) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.logins[identifier]
	if !ok {
		e = &loginEntry{}
		m.logins[identifier] = e
	}

	if !e.lockedUntil.IsZero() {
		if now.Before(e.lockedUntil) {
			return Attempt{Count: e.count, LockedUntil: e.lockedUntil}, nil
		}
		*e = loginEntry{}
	}

	e.count++
	e.lastFailure = now
	if e.count >= policy.Threshold {
		e.lockedUntil = now.Add(policy.Duration)
	}
	return Attempt{Count: e.count, LockedUntil: e.lockedUntil}, nil
}

// IsLoginLocked reports the lock state of identifier. An expired lock is
// cleared as a side effect.
func (m *Memory) IsLoginLocked(_ context.Context, identifier string) (LockState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.logins[identifier]
	if !ok || e.lockedUntil.IsZero() {
		return LockState{}, nil
	}

	now := m.now()
	if now.Before(e.lockedUntil) {
		return LockState{Locked: true, RetryAfter: e.lockedUntil.Sub(now)}, nil
	}
	delete(m.logins, identifier)
	return LockState{}, nil
}

// ResetLoginAttempts clears the failure counter and any lock.
func (m *Memory) ResetLoginAttempts(_ context.Context, identifier string) error {
	m.mu.Lock()
	delete(m.logins, identifier)
	m.mu.Unlock()
	return nil
}

// Prune drops entries that are no longer relevant and returns how many were
// removed.
func (m *Memory) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, sent := range m.otpSent {
		if now.Sub(sent) > m.retention {
			delete(m.otpSent, id)
			removed++
		}
	}
	for id, e := range m.logins {
		lockExpired := !e.lockedUntil.IsZero() && !now.Before(e.lockedUntil)
		idle := e.lockedUntil.IsZero() && now.Sub(e.lastFailure) > m.retention
		if lockExpired || idle {
			delete(m.logins, id)
			removed++
		}
	}
	return removed
}

// RunJanitor calls Prune every interval until ctx is done.
func (m *Memory) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Prune()
		}
	}
}
