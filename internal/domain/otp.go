package domain

import "time"

// OtpPurpose scopes a one-time code to the flow that issued it.
type OtpPurpose string

const (
	PurposeVerifyEmail   OtpPurpose = "VERIFY_EMAIL"
	PurposeResetPassword OtpPurpose = "RESET_PASSWORD"
)

// EmailOtp is a stored one-time code. Only the hash of the code is kept.
type EmailOtp struct {
	ID         string
	UserID     string
	CodeHash   string
	Purpose    OtpPurpose
	ExpiresAt  time.Time
	IsConsumed bool
	CreatedAt  time.Time
}

// Expired reports whether the code is past its expiry at now.
func (o *EmailOtp) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
