package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OtpIssued counts successfully stored OTP challenges.
	OtpIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_otp_issued_total",
		Help: "Total number of OTP challenges issued",
	})

	// OtpVerifications counts verification attempts by outcome
	// (success, not_found, mismatch, max_attempts).
	OtpVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_otp_verifications_total",
		Help: "Total number of OTP verification attempts by result",
	}, []string{"result"})

	// RateLimited counts OTP sends rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_rate_limited_total",
		Help: "Total number of OTP requests rejected by rate limiting",
	})

	// Logins counts successful logins, split by new vs returning user.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Total number of successful logins",
	}, []string{"new_user"})

	// TokenRotations counts successful refresh-token rotations.
	TokenRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Total number of refresh token rotations",
	})
)
