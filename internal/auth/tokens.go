package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nalauth/server/internal/model"
	"github.com/nalauth/server/internal/repo"
)

// AccessClaims is the fixed claim set of an access token.
type AccessClaims struct {
	PhoneNumber string `json:"phone_number"`
	TokenType   string `json:"typ"`
	jwt.RegisteredClaims
}

const accessTokenType = "access"

// TokenService issues and verifies both credential kinds: stateless signed
// access tokens and storage-backed revocable refresh tokens. Access token
// verification never touches storage; refresh operations always do.
type TokenService struct {
	secret      []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	refreshRepo repo.RefreshRepo
}

// NewTokenService creates a new token service. The secret comes from
// configuration; it is never hardcoded.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, refreshRepo repo.RefreshRepo) *TokenService {
	return &TokenService{
		secret:      []byte(secret),
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		refreshRepo: refreshRepo,
	}
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// SignAccessToken creates a signed access token for the user.
func (s *TokenService) SignAccessToken(userID uuid.UUID, phoneNumber string) (string, error) {
	now := time.Now()
	claims := &AccessClaims{
		PhoneNumber: phoneNumber,
		TokenType:   accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature, expiry and token type. Stateless: no
// storage is consulted. Any failure maps to the one constant domain error.
func (s *TokenService) VerifyAccessToken(tokenString string) (uuid.UUID, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, "", ErrInvalidAccessToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.TokenType != accessTokenType {
		return uuid.Nil, "", ErrInvalidAccessToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", ErrInvalidAccessToken
	}
	return userID, claims.PhoneNumber, nil
}

// IssueRefreshToken stores a new refresh token for the user, revoking every
// previously active one in the same transaction (single active session).
// The raw token is returned exactly once and is never retrievable again.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	raw, hash, err := GenerateRefreshToken()
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	expiresAt := time.Now().Add(s.refreshTTL)
	if _, err := s.refreshRepo.CreateReplacing(ctx, userID, hash, expiresAt); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return raw, nil
}

// VerifyRefreshToken resolves a raw token to its owning user. Never-issued,
// expired and revoked tokens are indistinguishable to the caller.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, raw string) (model.User, error) {
	_, user, err := s.refreshRepo.FindActiveByHash(ctx, HashRefreshToken(raw))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, ErrInvalidRefreshToken
		}
		return model.User{}, fmt.Errorf("verify refresh token: %w", err)
	}
	return user, nil
}

// Rotate atomically revokes the old refresh token and issues a replacement.
// There is no window where both are valid or both invalid.
func (s *TokenService) Rotate(ctx context.Context, raw string) (model.User, string, error) {
	newRaw, newHash, err := GenerateRefreshToken()
	if err != nil {
		return model.User{}, "", fmt.Errorf("generate refresh token: %w", err)
	}
	expiresAt := time.Now().Add(s.refreshTTL)
	user, err := s.refreshRepo.Rotate(ctx, HashRefreshToken(raw), newHash, expiresAt)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, "", ErrInvalidRefreshToken
		}
		return model.User{}, "", fmt.Errorf("rotate refresh token: %w", err)
	}
	return user, newRaw, nil
}

// RevokeAll revokes every active refresh token for the user.
func (s *TokenService) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.refreshRepo.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return n, nil
}

// RevokeOne revokes a specific raw token; false when no live row matched.
func (s *TokenService) RevokeOne(ctx context.Context, raw string) (bool, error) {
	revoked, err := s.refreshRepo.RevokeByHash(ctx, HashRefreshToken(raw))
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return revoked, nil
}

// GenerateRefreshToken returns a random base64url token (32 bytes) and its
// SHA-256 hash as hex.
func GenerateRefreshToken() (token string, hashHex string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken returns the SHA-256 hex of the raw token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
