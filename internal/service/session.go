package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pmapp/authsvc/internal/domain"
	"github.com/pmapp/authsvc/internal/event"
	apperrors "github.com/pmapp/authsvc/pkg/errors"
	"github.com/pmapp/authsvc/pkg/logger"
)

// Login authenticates with email and password. The lockout check runs
// before anything about the credentials is evaluated.
func (s *AuthService) Login(ctx context.Context, email, pw string) (_ *domain.Session, err error) {
	defer func() { observe(opLogin, err) }()

	email = domain.NormalizeEmail(email)

	lock, err := s.guard.IsLoginLocked(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check login lock: %w", err)
	}
	if lock.Locked {
		return nil, domain.ErrAccountLocked(lock.RetryAfter)
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		// Keep the response time close to that of a wrong password.
		s.hasher.Verify(s.placeholderHash(), pw)
		return nil, s.failedLogin(ctx, email)
	}
	// Pending accounts are rejected before the password is looked at and
	// never count toward lockout.
	if !user.IsVerified {
		return nil, domain.ErrEmailNotVerified()
	}
	if !s.hasher.Verify(user.PasswordHash, pw) {
		return nil, s.failedLogin(ctx, email)
	}

	if err := s.guard.ResetLoginAttempts(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login attempts",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.upgradeHash(ctx, user, pw)

	sess, err := s.newSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.events.Emit(ctx, event.UserLoggedIn, payloadFor(user, s.now().UTC()))
	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", logger.MaskEmail(user.Email)),
	)
	return sess, nil
}

// Refresh exchanges a refresh token for a new access token and a new
// refresh token, revoking the presented one. A nil session without error
// means the token is unusable and the client must log in again.
func (s *AuthService) Refresh(ctx context.Context, token string) (sess *domain.Session, err error) {
	defer func() { observeRefresh(sess, err) }()

	if token == "" {
		return nil, nil
	}

	claims, err := s.tokens.VerifyRefresh(token)
	if err != nil {
		refreshRejected.WithLabelValues("invalid_token").Inc()
		return nil, nil
	}

	tokenHash := HashToken(token)
	stored, err := s.sessions.GetByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			refreshRejected.WithLabelValues("unknown").Inc()
			return nil, nil
		}
		return nil, fmt.Errorf("get refresh session: %w", err)
	}

	now := s.now().UTC()
	if !stored.Usable(now) {
		if stored.IsRevoked {
			return nil, s.handleReuse(ctx, stored)
		}
		refreshRejected.WithLabelValues("expired").Inc()
		return nil, nil
	}
	if stored.UserID != claims.UserID() {
		refreshRejected.WithLabelValues("subject_mismatch").Inc()
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get user for refresh: %w", err)
		}
		if err := s.sessions.Revoke(ctx, tokenHash); err != nil {
			return nil, fmt.Errorf("revoke orphaned session: %w", err)
		}
		refreshRejected.WithLabelValues("user_missing").Inc()
		return nil, nil
	}

	refreshToken, next, err := s.mintRefresh(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Rotate(ctx, tokenHash, next, now); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			s.logger.WarnContext(ctx, "refresh token rotated concurrently",
				slog.String("user_id", user.ID),
				slog.String("session_id", stored.ID),
			)
			refreshRejected.WithLabelValues("concurrent").Inc()
			return nil, nil
		}
		return nil, fmt.Errorf("rotate refresh session: %w", err)
	}

	accessToken, err := s.tokens.SignAccess(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.InfoContext(ctx, "session refreshed", slog.String("user_id", user.ID))
	return &domain.Session{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: next.ExpiresAt,
		User:             user.Sanitize(),
	}, nil
}

// Logout revokes the session behind token, if any. It never fails because
// of a missing or unknown token.
func (s *AuthService) Logout(ctx context.Context, token string) (err error) {
	defer func() { observe(opLogout, err) }()

	if token == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	s.logger.InfoContext(ctx, "user logged out")
	return nil
}

// HashToken returns the hex SHA-256 of a raw refresh token, the form in
// which sessions are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *AuthService) failedLogin(ctx context.Context, email string) error {
	attempt, err := s.guard.RegisterFailedLogin(ctx, email, s.cfg.Lockout)
	if err != nil {
		return fmt.Errorf("register failed login: %w", err)
	}
	if attempt.Locked() {
		s.logger.WarnContext(ctx, "login locked after repeated failures",
			slog.String("email", logger.MaskEmail(email)),
			slog.Int("attempts", attempt.Count),
		)
		return domain.ErrInvalidCredentials(attempt.LockedUntil.Sub(s.now()))
	}
	return domain.ErrInvalidCredentials(0)
}

// handleReuse records presentation of an already revoked token and, when
// configured, revokes every session of its owner.
func (s *AuthService) handleReuse(ctx context.Context, stored *domain.RefreshSession) error {
	refreshRejected.WithLabelValues("reused").Inc()
	s.logger.WarnContext(ctx, "revoked refresh token presented again",
		slog.String("user_id", stored.UserID),
		slog.String("session_id", stored.ID),
	)
	if !s.cfg.RevokeAllOnReuse {
		return nil
	}
	n, err := s.sessions.RevokeByUserID(ctx, stored.UserID)
	if err != nil {
		return fmt.Errorf("revoke sessions after reuse: %w", err)
	}
	s.logger.WarnContext(ctx, "revoked all sessions after token reuse",
		slog.String("user_id", stored.UserID),
		slog.Int64("revoked", n),
	)
	return nil
}

func (s *AuthService) newSession(ctx context.Context, user *domain.User) (*domain.Session, error) {
	accessToken, err := s.tokens.SignAccess(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, record, err := s.mintRefresh(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create refresh session: %w", err)
	}

	return &domain.Session{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: record.ExpiresAt,
		User:             user.Sanitize(),
	}, nil
}

// mintRefresh signs a refresh token with a fresh jti and builds the record
// to persist for it.
func (s *AuthService) mintRefresh(userID string) (string, *domain.RefreshSession, error) {
	id := uuid.New().String()
	token, expiresAt, err := s.tokens.SignRefresh(userID, id)
	if err != nil {
		return "", nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, &domain.RefreshSession{
		ID:        id,
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	}, nil
}

// upgradeHash re-hashes the password when the stored hash was produced
// with weaker parameters. Failures are logged; the login proceeds.
func (s *AuthService) upgradeHash(ctx context.Context, user *domain.User, pw string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to rehash password", slog.String("error", err.Error()))
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, user.PasswordHash, hash); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			s.logger.InfoContext(ctx, "password changed before rehash was stored", slog.String("user_id", user.ID))
			return
		}
		s.logger.WarnContext(ctx, "failed to store upgraded password hash",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	user.PasswordHash = hash
}

func (s *AuthService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(uuid.New().String())
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}
