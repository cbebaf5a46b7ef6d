package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pmapp/authsvc/internal/domain"
	"github.com/pmapp/authsvc/pkg/database"
	apperrors "github.com/pmapp/authsvc/pkg/errors"
)

// RefreshSessionRepository implements repository.RefreshSessionRepository
// using PostgreSQL.
type RefreshSessionRepository struct {
	pool database.DBTX
}

// NewRefreshSessionRepository creates a new PostgreSQL-backed session repository.
func NewRefreshSessionRepository(pool database.DBTX) *RefreshSessionRepository {
	return &RefreshSessionRepository{pool: pool}
}

const insertSession = `
	INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, is_revoked, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

// Create stores a new refresh session.
func (r *RefreshSessionRepository) Create(ctx context.Context, s *domain.RefreshSession) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateRefreshSession", insertSession)
	defer func() { finish(end, err) }()

	_, err = r.pool.Exec(ctx, insertSession,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.IsRevoked, s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("insert refresh session: %w", err)
	}
	return nil
}

// GetByHash retrieves a refresh session by its token hash.
func (r *RefreshSessionRepository) GetByHash(ctx context.Context, tokenHash string) (_ *domain.RefreshSession, err error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, is_revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	ctx, end := database.TraceQuery(ctx, "GetRefreshSession", query)
	defer func() { finish(end, err) }()

	var s domain.RefreshSession
	err = r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.ExpiresAt,
		&s.IsRevoked,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh session: %w", err)
	}
	return &s, nil
}

// Revoke revokes a session by hash.
func (r *RefreshSessionRepository) Revoke(ctx context.Context, tokenHash string) (err error) {
	query := `UPDATE refresh_tokens SET is_revoked = TRUE WHERE token_hash = $1 AND is_revoked = FALSE`

	ctx, end := database.TraceQuery(ctx, "RevokeRefreshSession", query)
	defer func() { finish(end, err) }()

	if _, err = r.pool.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// RevokeByUserID revokes all active sessions of a user.
func (r *RefreshSessionRepository) RevokeByUserID(ctx context.Context, userID string) (_ int64, err error) {
	query := `UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE`

	ctx, end := database.TraceQuery(ctx, "RevokeUserRefreshSessions", query)
	defer func() { finish(end, err) }()

	ct, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh sessions by user: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Rotate revokes the old session and inserts its replacement atomically.
// The conditional update serializes concurrent rotations of the same token:
// only one caller sees a row affected.
func (r *RefreshSessionRepository) Rotate(ctx context.Context, oldHash string, next *domain.RefreshSession, now time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "RotateRefreshSession", "UPDATE refresh_tokens; INSERT INTO refresh_tokens")
	defer func() { finish(end, err) }()

	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET is_revoked = TRUE
			 WHERE token_hash = $1 AND is_revoked = FALSE AND expires_at > $2`,
			oldHash, now,
		)
		if err != nil {
			return fmt.Errorf("revoke rotated session: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.ErrConflict
		}

		if _, err := tx.Exec(ctx, insertSession,
			next.ID, next.UserID, next.TokenHash, next.ExpiresAt, next.IsRevoked, next.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert rotated session: %w", err)
		}
		return nil
	})
}
