// Package otp generates numeric one-time codes and hashes them at rest.
package otp

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/pmapp/authsvc/internal/password"
)

const (
	DefaultLength = 6
	maxLength     = 12
)

// DefaultParams are lighter than the password defaults since codes are
// short-lived.
func DefaultParams() password.Params {
	return password.Params{
		Memory:      48 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

var ten = big.NewInt(10)

// Service issues and checks one-time codes.
type Service struct {
	hasher *password.Argon2
	length int
	ttl    time.Duration
	now    func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an OTP service. length must be between 4 and 12.
func NewService(params password.Params, length int, ttl time.Duration, opts ...Option) (*Service, error) {
	if length < 4 || length > maxLength {
		return nil, errors.New("otp length must be between 4 and 12")
	}
	if ttl <= 0 {
		return nil, errors.New("otp ttl must be positive")
	}
	h, err := password.New(params)
	if err != nil {
		return nil, err
	}
	s := &Service{hasher: h, length: length, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate returns a fresh code of the configured length.
func (s *Service) Generate() (string, error) {
	return Generate(s.length)
}

// Generate returns a code of n digits. Each digit is drawn uniformly from
// crypto/rand.
func Generate(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// Hash hashes a code for storage.
func (s *Service) Hash(code string) (string, error) {
	return s.hasher.Hash(code)
}

// Verify compares a code against its stored hash.
func (s *Service) Verify(hash, code string) bool {
	return s.hasher.Verify(hash, code)
}

// BuildExpiry returns the expiry for a code issued now.
func (s *Service) BuildExpiry() time.Time {
	return s.now().Add(s.ttl)
}

// TTL returns the configured code lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}
