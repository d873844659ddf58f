package model

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity anchor. Created on first successful login for an
// unseen phone number.
type User struct {
	ID          uuid.UUID
	PhoneNumber string
	IsVerified  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLogin   *time.Time
}

// OtpChallenge is one outstanding or historical one-time code. At most one
// unverified, unexpired challenge per phone number is live at a time.
type OtpChallenge struct {
	ID           uuid.UUID
	PhoneNumber  string
	CodeHash     string
	AttemptCount int
	MaxAttempts  int
	Verified     bool
	CreatedAt    time.Time
	ExpiresAt    time.Time
	VerifiedAt   *time.Time
}

// RateLimitWindow counts requests of a given purpose for a subject. Windows
// are insert-only; the limiter sums windows overlapping now-duration.
type RateLimitWindow struct {
	ID            int64
	Subject       string
	Purpose       string
	WindowStart   time.Time
	WindowSeconds int
	RequestCount  int
}

// RefreshToken is a stateful session credential. Only the SHA-256 hex of the
// raw token is ever stored.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

// OtpVerifyStatus is the outcome of a single OTP verification attempt.
type OtpVerifyStatus int

const (
	// OtpVerifySuccess: the candidate matched and the challenge was consumed.
	OtpVerifySuccess OtpVerifyStatus = iota
	// OtpVerifyNotFound: no live challenge for the phone number.
	OtpVerifyNotFound
	// OtpVerifyMaxAttempts: the attempt budget was already spent.
	OtpVerifyMaxAttempts
	// OtpVerifyMismatch: wrong code; AttemptsRemaining tells how many are left.
	OtpVerifyMismatch
)

func (s OtpVerifyStatus) String() string {
	switch s {
	case OtpVerifySuccess:
		return "success"
	case OtpVerifyNotFound:
		return "not_found"
	case OtpVerifyMaxAttempts:
		return "max_attempts"
	case OtpVerifyMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// OtpVerifyResult pairs the status with the attempts left after this call.
type OtpVerifyResult struct {
	Status            OtpVerifyStatus
	AttemptsRemaining int
}
