package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pmapp/authsvc/internal/domain"
	"github.com/pmapp/authsvc/internal/service"
	"github.com/pmapp/authsvc/pkg/httputil"
	"github.com/pmapp/authsvc/pkg/middleware"
	"github.com/pmapp/authsvc/pkg/validator"
)

// AuthService is the subset of service.AuthService the handlers call.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput) (*domain.Profile, error)
	VerifyEmail(ctx context.Context, email, code string) (*domain.Profile, error)
	ResendOtp(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*domain.Session, error)
	Refresh(ctx context.Context, token string) (*domain.Session, error)
	Logout(ctx context.Context, token string) error
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, input service.ResetPasswordInput) error
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service AuthService
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
}

// VerifyEmailRequest is the JSON request body for email verification.
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,min=4,max=12,numeric"`
}

// EmailRequest is the JSON request body for resend-otp and forgot-password.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

// ResetPasswordRequest is the JSON request body for completing a reset.
type ResetPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,min=4,max=12,numeric"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// --- Response types ---

// UserResponse wraps a sanitized user.
type UserResponse struct {
	User *domain.Profile `json:"user"`
}

// SessionResponse is returned by login and refresh. Both fields are null
// when refresh found no usable session.
type SessionResponse struct {
	AccessToken *string         `json:"access_token"`
	User        *domain.Profile `json:"user"`
}

// OKResponse acknowledges an operation with no payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{
		Data:    UserResponse{User: user},
		Message: "verification code sent",
	})
}

// VerifyEmail handles POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, err := h.service.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: UserResponse{User: user}})
}

// ResendOtp handles POST /api/v1/auth/resend-otp
func (h *AuthHandler) ResendOtp(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	if err := h.service.ResendOtp(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: OKResponse{OK: true}})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	sess, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.set(w, sess)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: SessionResponse{AccessToken: &sess.AccessToken, User: sess.User},
	})
}

// Refresh handles POST /api/v1/auth/refresh. The refresh token is read
// from the cookie only.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := h.cookies.read(r)

	sess, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if sess == nil {
		if token != "" {
			h.cookies.clear(w)
		}
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: SessionResponse{}})
		return
	}

	h.cookies.set(w, sess)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: SessionResponse{AccessToken: &sess.AccessToken, User: sess.User},
	})
}

// Logout handles POST /api/v1/auth/logout. The cookie is cleared even when
// revocation fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.service.Logout(r.Context(), h.cookies.read(r))
	h.cookies.clear(w)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: OKResponse{OK: true}})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetProfile(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: UserResponse{User: user}})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data:    OKResponse{OK: true},
		Message: "if the account exists, a reset code has been sent",
	})
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	err := h.service.ResetPassword(r.Context(), service.ResetPasswordInput{
		Email:    req.Email,
		Code:     req.Code,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data:    OKResponse{OK: true},
		Message: "password updated, please log in again",
	})
}
