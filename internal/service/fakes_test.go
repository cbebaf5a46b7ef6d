package service

import (
	"context"
	"sync"
	"time"

	"github.com/pmapp/authsvc/internal/domain"
	"github.com/pmapp/authsvc/internal/event"
	apperrors "github.com/pmapp/authsvc/pkg/errors"
)

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---------------------------------------------------------------------------
// Store: users, codes and refresh sessions behind one lock
// ---------------------------------------------------------------------------

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]domain.User
	otps     []*domain.EmailOtp
	sessions map[string]*domain.RefreshSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]domain.User),
		sessions: make(map[string]*domain.RefreshSession),
	}
}

type fakeUsers struct{ *fakeStore }
type fakeOtps struct{ *fakeStore }
type fakeSessions struct{ *fakeStore }

func (s fakeUsers) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &u, nil
}

func (s fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s fakeUsers) Update(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return apperrors.NotFound("user", u.ID)
	}
	s.users[u.ID] = *u
	return nil
}

func (s fakeUsers) UpdatePasswordHash(_ context.Context, id, oldHash, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.PasswordHash != oldHash {
		return apperrors.ErrConflict
	}
	u.PasswordHash = newHash
	s.users[id] = u
	return nil
}

func (s fakeOtps) Issue(_ context.Context, o *domain.EmailOtp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, prev := range s.otps {
		if prev.UserID == o.UserID && prev.Purpose == o.Purpose {
			prev.IsConsumed = true
		}
	}
	cp := *o
	s.otps = append(s.otps, &cp)
	return nil
}

func (s fakeOtps) LatestActive(_ context.Context, userID string, purpose domain.OtpPurpose) (*domain.EmailOtp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.otps) - 1; i >= 0; i-- {
		o := s.otps[i]
		if o.UserID == userID && o.Purpose == purpose && !o.IsConsumed {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s fakeOtps) Consume(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.otpByID(id); o != nil {
		o.IsConsumed = true
	}
	return nil
}

func (s fakeOtps) ConsumeAndVerifyUser(_ context.Context, otpID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.otpByID(otpID)
	if o == nil || o.IsConsumed {
		return apperrors.ErrConflict
	}
	u := s.users[userID]
	o.IsConsumed = true
	u.IsVerified = true
	s.users[userID] = u
	return nil
}

func (s fakeOtps) ConsumeAndResetPassword(_ context.Context, otpID, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.otpByID(otpID)
	if o == nil || o.IsConsumed {
		return apperrors.ErrConflict
	}
	o.IsConsumed = true
	u := s.users[userID]
	u.PasswordHash = hash
	s.users[userID] = u
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess.IsRevoked = true
		}
	}
	return nil
}

func (s *fakeStore) otpByID(id string) *domain.EmailOtp {
	for _, o := range s.otps {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (s fakeSessions) Create(_ context.Context, sess *domain.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.TokenHash] = &cp
	return nil
}

func (s fakeSessions) GetByHash(_ context.Context, hash string) (*domain.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[hash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s fakeSessions) Revoke(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[hash]; ok {
		sess.IsRevoked = true
	}
	return nil
}

func (s fakeSessions) RevokeByUserID(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.UserID == userID && !sess.IsRevoked {
			sess.IsRevoked = true
			n++
		}
	}
	return n, nil
}

func (s fakeSessions) Rotate(_ context.Context, oldHash string, next *domain.RefreshSession, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.sessions[oldHash]
	if !ok || !old.Usable(now) {
		return apperrors.ErrConflict
	}
	old.IsRevoked = true
	cp := *next
	s.sessions[next.TokenHash] = &cp
	return nil
}

func (s *fakeStore) session(hash string) domain.RefreshSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.sessions[hash]
}

func (s *fakeStore) deleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func (s *fakeStore) putUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// ---------------------------------------------------------------------------
// Mailer and events
// ---------------------------------------------------------------------------

type sentCode struct {
	to, name, code string
	purpose        domain.OtpPurpose
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, to, name, code string) error {
	return m.record(to, name, code, domain.PurposeVerifyEmail)
}

func (m *fakeMailer) SendPasswordResetCode(_ context.Context, to, name, code string) error {
	return m.record(to, name, code, domain.PurposeResetPassword)
}

func (m *fakeMailer) record(to, name, code string, purpose domain.OtpPurpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentCode{to: to, name: name, code: code, purpose: purpose})
	return nil
}

// lastCode returns the newest code mailed to address for purpose.
func (m *fakeMailer) lastCode(address string, purpose domain.OtpPurpose) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].to == address && m.sent[i].purpose == purpose {
			return m.sent[i].code
		}
	}
	return ""
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(_ context.Context, eventType string, _ event.UserPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
