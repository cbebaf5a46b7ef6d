package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pmapp/authsvc/internal/domain"
	apperrors "github.com/pmapp/authsvc/pkg/errors"
)

const (
	opRegister       = "register"
	opVerifyEmail    = "verify_email"
	opResendOtp      = "resend_otp"
	opLogin          = "login"
	opRefresh        = "refresh"
	opLogout         = "logout"
	opGetProfile     = "get_profile"
	opForgotPassword = "forgot_password"
	opResetPassword  = "reset_password"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Auth operations by outcome. Outcome is \"success\" or the error code.",
		},
		[]string{"operation", "outcome"},
	)

	refreshRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_rejected_total",
			Help: "Refresh attempts that ended without a new session, by reason.",
		},
		[]string{"reason"},
	)
)

func observe(op string, err error) {
	operationsTotal.WithLabelValues(op, outcome(err)).Inc()
}

// observeRefresh counts a refresh that returned no session as "rejected".
func observeRefresh(sess *domain.Session, err error) {
	if err == nil && sess == nil {
		operationsTotal.WithLabelValues(opRefresh, "rejected").Inc()
		return
	}
	observe(opRefresh, err)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if appErr, ok := apperrors.As(err); ok {
		return appErr.Code
	}
	return "error"
}
