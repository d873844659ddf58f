package auth

import (
	"errors"
	"fmt"
	"time"
)

// Stable machine-readable error codes. The HTTP layer translates these 1:1;
// anything that is not a DomainError is an infrastructure failure and
// surfaces as INTERNAL_ERROR.
const (
	CodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	CodeOtpExpired          = "OTP_EXPIRED"
	CodeInvalidOtp          = "INVALID_OTP"
	CodeMaxAttempts         = "MAX_ATTEMPTS_EXCEEDED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeInvalidAccessToken  = "INVALID_ACCESS_TOKEN"
	CodeValidation          = "VALIDATION_ERROR"
)

// DomainError is a user-recoverable failure with a stable code. Two
// DomainErrors match under errors.Is when their codes match, so sentinel
// values below double as match targets for instances carrying details.
type DomainError struct {
	Code    string
	Message string

	// RetryAfter is set on rate-limit errors.
	RetryAfter time.Duration
	// AttemptsRemaining is set on OTP mismatch errors.
	AttemptsRemaining int
}

func (e *DomainError) Error() string { return e.Message }

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

var (
	ErrRateLimited          = &DomainError{Code: CodeRateLimited, Message: "too many OTP requests, please wait before requesting another"}
	ErrOtpNotFoundOrExpired = &DomainError{Code: CodeOtpExpired, Message: "OTP expired or not found, please request a new one"}
	ErrOtpMismatch          = &DomainError{Code: CodeInvalidOtp, Message: "invalid OTP"}
	ErrOtpMaxAttempts       = &DomainError{Code: CodeMaxAttempts, Message: "maximum OTP attempts exceeded, please request a new one"}
	ErrInvalidRefreshToken  = &DomainError{Code: CodeInvalidRefreshToken, Message: "invalid or expired refresh token"}
	ErrInvalidAccessToken   = &DomainError{Code: CodeInvalidAccessToken, Message: "invalid or expired access token"}
)

// RateLimited returns a rate-limit error carrying the wait time.
func RateLimited(retryAfter time.Duration) *DomainError {
	return &DomainError{
		Code:       CodeRateLimited,
		Message:    ErrRateLimited.Message,
		RetryAfter: retryAfter,
	}
}

// OtpMismatch returns an invalid-OTP error carrying the attempts left.
func OtpMismatch(attemptsRemaining int) *DomainError {
	return &DomainError{
		Code:              CodeInvalidOtp,
		Message:           fmt.Sprintf("invalid OTP, %d attempts remaining", attemptsRemaining),
		AttemptsRemaining: attemptsRemaining,
	}
}

// Validation returns a VALIDATION_ERROR for input rejected before any
// stateful component is touched.
func Validation(msg string) *DomainError {
	return &DomainError{Code: CodeValidation, Message: msg}
}

// AsDomain extracts a DomainError from err, if any.
func AsDomain(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
