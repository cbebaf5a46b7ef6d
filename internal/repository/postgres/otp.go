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

// OtpRepository implements repository.OtpRepository using PostgreSQL.
type OtpRepository struct {
	pool database.DBTX
	now  func() time.Time
}

// NewOtpRepository creates a new PostgreSQL-backed OTP repository.
func NewOtpRepository(pool database.DBTX) *OtpRepository {
	return &OtpRepository{pool: pool, now: time.Now}
}

// Issue invalidates earlier codes of the same purpose and inserts the new
// one in a single transaction.
func (r *OtpRepository) Issue(ctx context.Context, o *domain.EmailOtp) (err error) {
	ctx, end := database.TraceQuery(ctx, "IssueOtp", "UPDATE email_otps; INSERT INTO email_otps")
	defer func() { finish(end, err) }()

	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE email_otps SET is_consumed = TRUE
			 WHERE user_id = $1 AND purpose = $2 AND is_consumed = FALSE`,
			o.UserID, o.Purpose,
		)
		if err != nil {
			return fmt.Errorf("invalidate previous otps: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO email_otps (id, user_id, code_hash, purpose, expires_at, is_consumed, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, o.UserID, o.CodeHash, o.Purpose, o.ExpiresAt, o.IsConsumed, o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert otp: %w", err)
		}
		return nil
	})
}

// LatestActive returns the newest unconsumed code for the user and purpose.
func (r *OtpRepository) LatestActive(ctx context.Context, userID string, purpose domain.OtpPurpose) (_ *domain.EmailOtp, err error) {
	query := `
		SELECT id, user_id, code_hash, purpose, expires_at, is_consumed, created_at
		FROM email_otps
		WHERE user_id = $1 AND purpose = $2 AND is_consumed = FALSE
		ORDER BY created_at DESC
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "GetLatestActiveOtp", query)
	defer func() { finish(end, err) }()

	var o domain.EmailOtp
	err = r.pool.QueryRow(ctx, query, userID, purpose).Scan(
		&o.ID,
		&o.UserID,
		&o.CodeHash,
		&o.Purpose,
		&o.ExpiresAt,
		&o.IsConsumed,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan otp: %w", err)
	}
	return &o, nil
}

// Consume marks a code consumed. Consuming an already consumed code is a
// no-op.
func (r *OtpRepository) Consume(ctx context.Context, id string) (err error) {
	query := `UPDATE email_otps SET is_consumed = TRUE WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "ConsumeOtp", query)
	defer func() { finish(end, err) }()

	if _, err = r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

// ConsumeAndVerifyUser flips the verified flag and consumes the code
// atomically.
func (r *OtpRepository) ConsumeAndVerifyUser(ctx context.Context, otpID, userID string) (err error) {
	ctx, end := database.TraceQuery(ctx, "ConsumeOtpAndVerifyUser", "UPDATE email_otps; UPDATE users")
	defer func() { finish(end, err) }()

	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := consumeActive(ctx, tx, otpID, userID); err != nil {
			return err
		}

		ct, err := tx.Exec(ctx,
			`UPDATE users SET is_verified = TRUE, updated_at = $1 WHERE id = $2`,
			r.now().UTC(), userID,
		)
		if err != nil {
			return fmt.Errorf("verify user: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.NotFound("user", userID)
		}
		return nil
	})
}

// ConsumeAndResetPassword replaces the password hash, consumes the code and
// revokes every active refresh session atomically.
func (r *OtpRepository) ConsumeAndResetPassword(ctx context.Context, otpID, userID, passwordHash string) (err error) {
	ctx, end := database.TraceQuery(ctx, "ConsumeOtpAndResetPassword", "UPDATE email_otps; UPDATE users; UPDATE refresh_tokens")
	defer func() { finish(end, err) }()

	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := consumeActive(ctx, tx, otpID, userID); err != nil {
			return err
		}

		ct, err := tx.Exec(ctx,
			`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
			passwordHash, r.now().UTC(), userID,
		)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.NotFound("user", userID)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE`,
			userID,
		); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return nil
	})
}

// consumeActive consumes the code only if it is still unconsumed, so two
// concurrent verifications cannot both succeed.
func consumeActive(ctx context.Context, tx pgx.Tx, otpID, userID string) error {
	ct, err := tx.Exec(ctx,
		`UPDATE email_otps SET is_consumed = TRUE
		 WHERE id = $1 AND user_id = $2 AND is_consumed = FALSE`,
		otpID, userID,
	)
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}
