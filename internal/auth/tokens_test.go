package auth

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-at-least-32-characters"

func newTokenService(accessTTL time.Duration) *TokenService {
	return NewTokenService(testSecret, accessTTL, 168*time.Hour, nil)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTokenService(30 * time.Minute)
	userID := uuid.New()

	signed, err := svc.SignAccessToken(userID, "+491511234567")
	require.NoError(t, err)

	gotID, gotPhone, err := svc.VerifyAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, "+491511234567", gotPhone)
}

func TestVerifyAccessToken_rejects(t *testing.T) {
	svc := newTokenService(30 * time.Minute)
	userID := uuid.New()

	t.Run("garbage", func(t *testing.T) {
		_, _, err := svc.VerifyAccessToken("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenService("a-completely-different-signing-secret", 30*time.Minute, 168*time.Hour, nil)
		signed, err := other.SignAccessToken(userID, "+491511234567")
		require.NoError(t, err)
		_, _, err = svc.VerifyAccessToken(signed)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired := newTokenService(-time.Minute)
		signed, err := expired.SignAccessToken(userID, "+491511234567")
		require.NoError(t, err)
		_, _, err = svc.VerifyAccessToken(signed)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("wrong token type", func(t *testing.T) {
		claims := &AccessClaims{
			PhoneNumber: "+491511234567",
			TokenType:   "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID.String(),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, _, err = svc.VerifyAccessToken(signed)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("unsigned algorithm", func(t *testing.T) {
		claims := &AccessClaims{
			PhoneNumber: "+491511234567",
			TokenType:   accessTokenType,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, _, err = svc.VerifyAccessToken(signed)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("non-uuid subject", func(t *testing.T) {
		claims := &AccessClaims{
			PhoneNumber: "+491511234567",
			TokenType:   accessTokenType,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-42",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, _, err = svc.VerifyAccessToken(signed)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})
}

func TestGenerateRefreshToken(t *testing.T) {
	raw1, hash1, err := GenerateRefreshToken()
	require.NoError(t, err)
	raw2, hash2, err := GenerateRefreshToken()
	require.NoError(t, err)

	assert.NotEqual(t, raw1, raw2, "tokens must be unique")
	assert.NotEqual(t, hash1, hash2)

	decoded, err := base64.RawURLEncoding.DecodeString(raw1)
	require.NoError(t, err)
	assert.Len(t, decoded, 32, "raw token must encode 32 random bytes")

	assert.Equal(t, hash1, HashRefreshToken(raw1), "stored hash must be the hash of the raw token")
	assert.Len(t, hash1, 64, "SHA-256 hex is 64 characters")
}
