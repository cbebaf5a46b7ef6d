package domain

import (
	"strings"
	"time"
)

// AccountType tags what a user may do in the project-management application.
type AccountType string

const (
	AccountAdministrator AccountType = "ADMINISTRATOR"
	AccountEmployee      AccountType = "EMPLOYEE"
)

// User represents a registered identity. PasswordHash never leaves the
// service layer; callers receive a Profile instead.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	IsVerified   bool
	AccountType  AccountType
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the sanitized view of a User. It has no secret fields, so it is
// safe to serialize into any response, log line or event.
type Profile struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	IsVerified  bool        `json:"is_verified"`
	AccountType AccountType `json:"account_type"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Sanitize strips secret fields from the user.
func (u *User) Sanitize() *Profile {
	if u == nil {
		return nil
	}
	return &Profile{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		IsVerified:  u.IsVerified,
		AccountType: u.AccountType,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// NormalizeEmail trims and lowercases an address. Emails are stored and
// looked up only in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
