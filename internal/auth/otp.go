package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/nalauth/server/internal/model"
	"github.com/nalauth/server/internal/repo"
)

// OtpStore creates and verifies one-time codes. Codes are generated from a
// cryptographically strong source and stored only as SHA-256(phone:code:salt);
// the raw code leaves the store exactly once, toward the caller responsible
// for delivery.
type OtpStore struct {
	repo        repo.OtpRepo
	salt        string
	codeLength  int
	ttl         time.Duration
	maxAttempts int
}

// NewOtpStore creates a new OTP challenge store.
func NewOtpStore(r repo.OtpRepo, salt string, codeLength int, ttl time.Duration, maxAttempts int) *OtpStore {
	return &OtpStore{
		repo:        r,
		salt:        salt,
		codeLength:  codeLength,
		ttl:         ttl,
		maxAttempts: maxAttempts,
	}
}

// TTL returns the configured challenge lifetime.
func (s *OtpStore) TTL() time.Duration { return s.ttl }

// Issue invalidates any live challenge for the phone number and stores a
// fresh one. Returns the raw code for delivery.
func (s *OtpStore) Issue(ctx context.Context, phone string) (string, error) {
	code, err := generateCode(s.codeLength)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	hash := hashOTPHex(phone, code, s.salt)
	expiresAt := time.Now().Add(s.ttl)
	if _, err := s.repo.CreateReplacing(ctx, phone, hash, expiresAt, s.maxAttempts); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return code, nil
}

// Verify checks the candidate against the newest live challenge. The
// attempt-check, compare and mutation happen atomically at the storage layer.
func (s *OtpStore) Verify(ctx context.Context, phone, candidate string) (model.OtpVerifyResult, error) {
	hash := hashOTPHex(phone, candidate, s.salt)
	res, err := s.repo.VerifyChallenge(ctx, phone, hash)
	if err != nil {
		return model.OtpVerifyResult{}, fmt.Errorf("verify challenge: %w", err)
	}
	return res, nil
}

// generateCode returns a numeric code of length n, one crypto/rand digit at a
// time so every length stays uniformly distributed.
func generateCode(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}

// hashOTPHex returns SHA-256(phone:code:salt) as hex for storage and lookup.
func hashOTPHex(phone, code, salt string) string {
	sum := sha256.Sum256([]byte(phone + ":" + code + ":" + salt))
	return hex.EncodeToString(sum[:])
}
