// Package service implements the auth orchestration: registration with
// email verification, login with lockout, refresh-token rotation and
// password reset.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pmapp/authsvc/internal/auth"
	"github.com/pmapp/authsvc/internal/domain"
	"github.com/pmapp/authsvc/internal/event"
	"github.com/pmapp/authsvc/internal/guard"
	"github.com/pmapp/authsvc/internal/otp"
	"github.com/pmapp/authsvc/internal/password"
	"github.com/pmapp/authsvc/internal/repository"
	apperrors "github.com/pmapp/authsvc/pkg/errors"
	"github.com/pmapp/authsvc/pkg/logger"
)

const (
	minPasswordLength = 8
	minNameLength     = 2
)

// Mailer delivers one-time codes. A returned error means the code did not
// reach the user.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, name, code string) error
	SendPasswordResetCode(ctx context.Context, to, name, code string) error
}

// Config holds the policy knobs of the auth flows.
type Config struct {
	OtpCooldown time.Duration
	Lockout     guard.LockoutPolicy

	// RevokeAllOnReuse revokes every session of a user when a revoked
	// refresh token is presented again.
	RevokeAllOnReuse bool
}

// Deps are the collaborators of AuthService. Events and Now are optional.
type Deps struct {
	Users    repository.UserRepository
	Otps     repository.OtpRepository
	Sessions repository.RefreshSessionRepository
	Hasher   *password.Argon2
	Codes    *otp.Service
	Tokens   *auth.TokenManager
	Guard    guard.Guard
	Mailer   Mailer
	Events   event.Emitter
	Logger   *slog.Logger
	Now      func() time.Time
}

// AuthService implements the business logic for authentication.
type AuthService struct {
	users    repository.UserRepository
	otps     repository.OtpRepository
	sessions repository.RefreshSessionRepository
	hasher   *password.Argon2
	codes    *otp.Service
	tokens   *auth.TokenManager
	guard    guard.Guard
	mailer   Mailer
	events   event.Emitter
	logger   *slog.Logger
	now      func() time.Time
	cfg      Config

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service.
func NewAuthService(deps Deps, cfg Config) *AuthService {
	if deps.Events == nil {
		deps.Events = event.Noop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Lockout.Threshold < 1 {
		cfg.Lockout = guard.DefaultLockoutPolicy()
	}
	return &AuthService{
		users:    deps.Users,
		otps:     deps.Otps,
		sessions: deps.Sessions,
		hasher:   deps.Hasher,
		codes:    deps.Codes,
		tokens:   deps.Tokens,
		guard:    deps.Guard,
		mailer:   deps.Mailer,
		events:   deps.Events,
		logger:   deps.Logger,
		now:      deps.Now,
		cfg:      cfg,
	}
}

// --- Input types ---

// RegisterInput holds the parameters for registering a user.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// ResetPasswordInput holds the parameters for completing a password reset.
type ResetPasswordInput struct {
	Email    string
	Code     string
	Password string
}

// --- Registration and verification ---

// Register creates an unverified account, or overwrites the name and
// password of one still pending verification, and emails a fresh code.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (_ *domain.Profile, err error) {
	defer func() { observe(opRegister, err) }()

	email := domain.NormalizeEmail(input.Email)
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len([]rune(input.Name)) < minNameLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("name must be at least %d characters", minNameLength))
	}

	existing, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsVerified {
		return nil, domain.ErrEmailInUse()
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := existing
	if user != nil {
		user.Name = input.Name
		user.PasswordHash = hash
		user.UpdatedAt = now
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("update pending user: %w", err)
		}
	} else {
		user = &domain.User{
			ID:           uuid.New().String(),
			Email:        email,
			PasswordHash: hash,
			Name:         input.Name,
			AccountType:  domain.AccountEmployee,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, apperrors.ErrAlreadyExists) {
				return nil, domain.ErrEmailInUse()
			}
			return nil, fmt.Errorf("create user: %w", err)
		}
	}

	if err := s.issueAndSend(ctx, user, domain.PurposeVerifyEmail); err != nil {
		return nil, err
	}

	s.events.Emit(ctx, event.UserRegistered, payloadFor(user, now))
	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("email", logger.MaskEmail(user.Email)),
		slog.Bool("re_registration", existing != nil),
	)

	return user.Sanitize(), nil
}

// VerifyEmail checks a verification code and marks the user verified.
// Verifying an already verified user succeeds without looking at the code.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (_ *domain.Profile, err error) {
	defer func() { observe(opVerifyEmail, err) }()

	user, err := s.requireByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.IsVerified {
		return user.Sanitize(), nil
	}

	record, err := s.checkCode(ctx, user.ID, domain.PurposeVerifyEmail, code)
	if err != nil {
		return nil, err
	}

	if err := s.otps.ConsumeAndVerifyUser(ctx, record.ID, user.ID); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, domain.ErrOtpNotFound()
		}
		return nil, fmt.Errorf("verify user: %w", err)
	}

	now := s.now().UTC()
	user.IsVerified = true
	user.UpdatedAt = now

	s.events.Emit(ctx, event.UserVerified, payloadFor(user, now))
	s.logger.InfoContext(ctx, "email verified", slog.String("user_id", user.ID))

	return user.Sanitize(), nil
}

// ResendOtp re-issues a verification code, subject to the resend cooldown.
func (s *AuthService) ResendOtp(ctx context.Context, email string) (err error) {
	defer func() { observe(opResendOtp, err) }()

	user, err := s.requireByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return domain.ErrAlreadyVerified()
	}

	cd, err := s.guard.CheckOtpCooldown(ctx, user.Email, s.cfg.OtpCooldown)
	if err != nil {
		return fmt.Errorf("check otp cooldown: %w", err)
	}
	if !cd.Allowed {
		return domain.ErrOtpRateLimited(cd.RetryAfter)
	}

	return s.issueAndSend(ctx, user, domain.PurposeVerifyEmail)
}

// --- Profile ---

// GetProfile returns the sanitized user.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (_ *domain.Profile, err error) {
	defer func() { observe(opGetProfile, err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUserNotFound()
		}
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	return user.Sanitize(), nil
}

// --- Helpers ---

// findByEmail returns nil without error when no user has the address.
func (s *AuthService) findByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *AuthService) requireByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.findByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound()
	}
	return user, nil
}

// issueAndSend stores a new code for purpose, invalidating older ones, and
// emails it. Delivery failure is returned as EMAIL_SEND_FAILED.
func (s *AuthService) issueAndSend(ctx context.Context, user *domain.User, purpose domain.OtpPurpose) error {
	code, err := s.codes.Generate()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	codeHash, err := s.codes.Hash(code)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}

	record := &domain.EmailOtp{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		CodeHash:  codeHash,
		Purpose:   purpose,
		ExpiresAt: s.codes.BuildExpiry(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.otps.Issue(ctx, record); err != nil {
		return fmt.Errorf("issue otp: %w", err)
	}

	name := user.Name
	switch purpose {
	case domain.PurposeResetPassword:
		err = s.mailer.SendPasswordResetCode(ctx, user.Email, name, code)
	default:
		err = s.mailer.SendVerificationCode(ctx, user.Email, name, code)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send otp email",
			slog.String("user_id", user.ID),
			slog.String("purpose", string(purpose)),
			slog.String("error", err.Error()),
		)
		return domain.ErrEmailSendFailed(err)
	}

	if err := s.guard.MarkOtpSent(ctx, user.Email); err != nil {
		s.logger.WarnContext(ctx, "failed to record otp send time",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// checkCode runs the code state machine against the newest active code.
// An expired code is consumed before OTP_EXPIRED is returned; a wrong code
// leaves the record usable until it expires.
func (s *AuthService) checkCode(ctx context.Context, userID string, purpose domain.OtpPurpose, code string) (*domain.EmailOtp, error) {
	record, err := s.otps.LatestActive(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrOtpNotFound()
		}
		return nil, fmt.Errorf("get active otp: %w", err)
	}

	if record.Expired(s.now()) {
		if err := s.otps.Consume(ctx, record.ID); err != nil {
			return nil, fmt.Errorf("consume expired otp: %w", err)
		}
		return nil, domain.ErrOtpExpired()
	}

	if !s.codes.Verify(record.CodeHash, code) {
		return nil, domain.ErrOtpInvalid()
	}
	return record, nil
}

func payloadFor(user *domain.User, at time.Time) event.UserPayload {
	return event.UserPayload{
		UserID:      user.ID,
		Email:       user.Email,
		AccountType: string(user.AccountType),
		OccurredAt:  at,
	}
}
