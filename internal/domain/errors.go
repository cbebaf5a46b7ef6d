package domain

import (
	"net/http"
	"time"

	apperrors "github.com/pmapp/authsvc/pkg/errors"
)

// Stable error codes returned by the auth service.
const (
	CodeEmailInUse        = "EMAIL_IN_USE"
	CodeUserNotFound      = "USER_NOT_FOUND"
	CodeOtpNotFound       = "OTP_NOT_FOUND"
	CodeOtpExpired        = "OTP_EXPIRED"
	CodeOtpInvalid        = "OTP_INVALID"
	CodeAlreadyVerified   = "ALREADY_VERIFIED"
	CodeOtpRateLimited    = "OTP_RATE_LIMITED"
	CodeAccountLocked     = "ACCOUNT_LOCKED"
	CodeInvalidCredential = "INVALID_CREDENTIALS"
	CodeEmailNotVerified  = "EMAIL_NOT_VERIFIED"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeEmailSendFailed   = "EMAIL_SEND_FAILED"
)

// ErrEmailInUse reports that a verified account already owns the email.
func ErrEmailInUse() *apperrors.AppError {
	return apperrors.New(CodeEmailInUse, "email is already registered", http.StatusConflict, apperrors.ErrAlreadyExists)
}

// ErrUserNotFound reports that no account exists for the email.
func ErrUserNotFound() *apperrors.AppError {
	return apperrors.New(CodeUserNotFound, "user not found", http.StatusNotFound, apperrors.ErrNotFound)
}

// ErrOtpNotFound reports that no unconsumed code is on record.
func ErrOtpNotFound() *apperrors.AppError {
	return apperrors.New(CodeOtpNotFound, "no active code, request a new one", http.StatusBadRequest, apperrors.ErrInvalidInput)
}

// ErrOtpExpired reports that the latest code is past its expiry.
func ErrOtpExpired() *apperrors.AppError {
	return apperrors.New(CodeOtpExpired, "code has expired, request a new one", http.StatusBadRequest, apperrors.ErrInvalidInput)
}

// ErrOtpInvalid reports a code that does not match.
func ErrOtpInvalid() *apperrors.AppError {
	return apperrors.New(CodeOtpInvalid, "code is incorrect", http.StatusBadRequest, apperrors.ErrInvalidInput)
}

// ErrAlreadyVerified reports that the email was already verified.
func ErrAlreadyVerified() *apperrors.AppError {
	return apperrors.New(CodeAlreadyVerified, "email is already verified", http.StatusBadRequest, apperrors.ErrInvalidInput)
}

// ErrOtpRateLimited reports a resend inside the cooldown window.
func ErrOtpRateLimited(retryAfter time.Duration) *apperrors.AppError {
	return apperrors.TooManyRequests(CodeOtpRateLimited, "please wait before requesting another code", retryAfter)
}

// ErrAccountLocked reports a login attempt while the identifier is locked.
func ErrAccountLocked(retryAfter time.Duration) *apperrors.AppError {
	return apperrors.TooManyRequests(CodeAccountLocked, "too many failed attempts, try again later", retryAfter)
}

// ErrInvalidCredentials carries a retry hint only when the failing attempt
// triggered a lockout.
func ErrInvalidCredentials(retryAfter time.Duration) *apperrors.AppError {
	err := apperrors.New(CodeInvalidCredential, "invalid email or password", http.StatusUnauthorized, apperrors.ErrUnauthorized)
	err.RetryAfter = retryAfter
	return err
}

// ErrEmailNotVerified reports a login to an account pending verification.
func ErrEmailNotVerified() *apperrors.AppError {
	return apperrors.New(CodeEmailNotVerified, "email address has not been verified", http.StatusForbidden, apperrors.ErrForbidden)
}

// ErrInvalidToken reports an access token that fails verification.
func ErrInvalidToken() *apperrors.AppError {
	return apperrors.New(CodeInvalidToken, "token is invalid or expired", http.StatusUnauthorized, apperrors.ErrUnauthorized)
}

// ErrEmailSendFailed wraps a mail delivery failure.
func ErrEmailSendFailed(cause error) *apperrors.AppError {
	return apperrors.Unavailable(CodeEmailSendFailed, "could not send email, try again later", cause)
}
