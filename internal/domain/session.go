package domain

import "time"

// RefreshSession is a persisted refresh token. TokenHash is the hex SHA-256
// of the raw token; the raw token is never stored.
type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

// Usable reports whether the session can still be exchanged at now.
func (s *RefreshSession) Usable(now time.Time) bool {
	return !s.IsRevoked && now.Before(s.ExpiresAt)
}

// Session is the outcome of a successful login or refresh. RefreshToken is
// the raw token destined for the client cookie.
type Session struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *Profile
}
