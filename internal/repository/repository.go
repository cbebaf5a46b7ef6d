package repository

import (
	"context"
	"time"

	"github.com/pmapp/authsvc/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
// Lookups return apperrors.ErrNotFound when no row matches.
type UserRepository interface {
	// Create inserts a new user. A duplicate email yields an
	// AlreadyExists error.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by id.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update overwrites the mutable fields of an existing user.
	Update(ctx context.Context, user *domain.User) error

	// UpdatePasswordHash replaces the password hash only while the stored
	// hash still equals oldHash. It returns apperrors.ErrConflict when the
	// hash changed in the meantime.
	UpdatePasswordHash(ctx context.Context, id, oldHash, newHash string) error
}

// OtpRepository persists one-time codes. The Consume* methods that touch
// other tables run in a single transaction and return apperrors.ErrConflict
// when the code was consumed concurrently.
type OtpRepository interface {
	// Issue consumes every unconsumed code of the same user and purpose,
	// then inserts otp.
	Issue(ctx context.Context, otp *domain.EmailOtp) error

	// LatestActive returns the most recent unconsumed code.
	LatestActive(ctx context.Context, userID string, purpose domain.OtpPurpose) (*domain.EmailOtp, error)

	// Consume marks a single code consumed.
	Consume(ctx context.Context, id string) error

	// ConsumeAndVerifyUser marks the code consumed and the user verified.
	ConsumeAndVerifyUser(ctx context.Context, otpID, userID string) error

	// ConsumeAndResetPassword marks the code consumed, replaces the user's
	// password hash and revokes all of the user's refresh sessions.
	ConsumeAndResetPassword(ctx context.Context, otpID, userID, passwordHash string) error
}

// RefreshSessionRepository persists hashed refresh tokens.
type RefreshSessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *domain.RefreshSession) error

	// GetByHash retrieves a session by token hash.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshSession, error)

	// Revoke revokes a session by token hash. Unknown hashes are ignored.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeByUserID revokes every active session of the user and returns
	// how many were revoked.
	RevokeByUserID(ctx context.Context, userID string) (int64, error)

	// Rotate revokes the session identified by oldHash and inserts next in
	// one transaction. It returns apperrors.ErrConflict when the old session
	// is no longer active at now, leaving nothing inserted.
	Rotate(ctx context.Context, oldHash string, next *domain.RefreshSession, now time.Time) error
}
