package http

import (
	"net/http"
	"time"

	"github.com/pmapp/authsvc/internal/domain"
)

// RefreshCookieName is the cookie carrying the raw refresh token.
const RefreshCookieName = "refreshToken"

// CookieConfig controls the refresh cookie attributes.
type CookieConfig struct {
	// Secure should be set in production.
	Secure bool
	Path   string
	Now    func() time.Time
}

func (c CookieConfig) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

func (c CookieConfig) read(r *http.Request) string {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// set writes the refresh cookie with a max age matching the session expiry.
func (c CookieConfig) set(w http.ResponseWriter, sess *domain.Session) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	maxAge := int(sess.RefreshExpiresAt.Sub(now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    sess.RefreshToken,
		Path:     c.path(),
		Expires:  sess.RefreshExpiresAt.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     c.path(),
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
