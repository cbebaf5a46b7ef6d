package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pmapp/authsvc/internal/domain"
	"github.com/pmapp/authsvc/internal/event"
	apperrors "github.com/pmapp/authsvc/pkg/errors"
	"github.com/pmapp/authsvc/pkg/logger"
)

// ForgotPassword emails a reset code to a verified user. Unknown and
// unverified addresses, and requests inside the resend cooldown, succeed
// silently so the endpoint cannot be used to probe for accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { observe(opForgotPassword, err) }()

	email = domain.NormalizeEmail(email)
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || !user.IsVerified {
		s.logger.InfoContext(ctx, "password reset requested for unknown or unverified email",
			slog.String("email", logger.MaskEmail(email)),
		)
		return nil
	}

	cd, err := s.guard.CheckOtpCooldown(ctx, user.Email, s.cfg.OtpCooldown)
	if err != nil {
		return fmt.Errorf("check otp cooldown: %w", err)
	}
	if !cd.Allowed {
		s.logger.InfoContext(ctx, "password reset suppressed by cooldown",
			slog.String("user_id", user.ID),
			slog.Duration("retry_after", cd.RetryAfter),
		)
		return nil
	}

	if err := s.issueAndSend(ctx, user, domain.PurposeResetPassword); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset requested", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword checks a reset code and, atomically, replaces the password,
// consumes the code and revokes every refresh session of the user.
func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) (err error) {
	defer func() { observe(opResetPassword, err) }()

	if len(input.Password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	user, err := s.requireByEmail(ctx, input.Email)
	if err != nil {
		return err
	}

	record, err := s.checkCode(ctx, user.ID, domain.PurposeResetPassword, input.Code)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.otps.ConsumeAndResetPassword(ctx, record.ID, user.ID, hash); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return domain.ErrOtpNotFound()
		}
		return fmt.Errorf("reset password: %w", err)
	}

	if err := s.guard.ResetLoginAttempts(ctx, user.Email); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login attempts",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.events.Emit(ctx, event.UserPasswordReset, payloadFor(user, s.now().UTC()))
	s.logger.InfoContext(ctx, "password reset completed", slog.String("user_id", user.ID))
	return nil
}
