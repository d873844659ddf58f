package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nalauth/server/internal/logger"
	"github.com/nalauth/server/internal/metrics"
	"github.com/nalauth/server/internal/model"
	"github.com/nalauth/server/internal/repo"
	"github.com/nalauth/server/internal/sms"
)

// rate-limit purpose for OTP sends
const purposeOtp = "otp"

// ProfileTracker reports profile-completion state for a user. Read-only from
// the auth core's perspective; repo.ProfileRepo satisfies it.
type ProfileTracker interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
	CompletionPercentage(ctx context.Context, userID uuid.UUID) (int, error)
}

// AuthService orchestrates the authentication flows. It never writes storage
// directly; every mutation goes through a component.
type AuthService struct {
	limiter  *RateLimiter
	otp      *OtpStore
	tokens   *TokenService
	users    repo.UserRepo
	profiles ProfileTracker
	sender   sms.Sender
	log      *slog.Logger

	otpCooldown         time.Duration
	completionThreshold int
	devMode             bool
}

// NewAuthService creates a new auth orchestrator.
func NewAuthService(
	limiter *RateLimiter,
	otp *OtpStore,
	tokens *TokenService,
	users repo.UserRepo,
	profiles ProfileTracker,
	sender sms.Sender,
	log *slog.Logger,
	otpCooldown time.Duration,
	completionThreshold int,
	devMode bool,
) *AuthService {
	return &AuthService{
		limiter:             limiter,
		otp:                 otp,
		tokens:              tokens,
		users:               users,
		profiles:            profiles,
		sender:              sender,
		log:                 log,
		otpCooldown:         otpCooldown,
		completionThreshold: completionThreshold,
		devMode:             devMode,
	}
}

// SendOtpResult reports a successful OTP issuance.
type SendOtpResult struct {
	ExpiresIn  time.Duration
	RetryAfter time.Duration
	// DevCode carries the raw code in non-production configurations only.
	DevCode string
}

// Session is the result shape shared by Login and Refresh.
type Session struct {
	AccessToken               string
	RefreshToken              string
	ExpiresIn                 time.Duration
	UserID                    uuid.UUID
	PhoneNumber               string
	IsNewUser                 bool
	ProfileExists             bool
	ProfileCompletionRequired bool
}

// SendOtp issues a one-time code for the phone number and hands it to the
// delivery collaborator. Fails closed on rate limiting; a delivery failure
// after the challenge is durable is a warning, not an error.
func (s *AuthService) SendOtp(ctx context.Context, phone string) (*SendOtpResult, error) {
	phone, err := CanonicalizePhone(phone)
	if err != nil {
		return nil, err
	}

	decision, err := s.limiter.Allow(ctx, phone, purposeOtp)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		metrics.RateLimited.Inc()
		return nil, RateLimited(decision.RetryAfter)
	}

	code, err := s.otp.Issue(ctx, phone)
	if err != nil {
		return nil, err
	}
	metrics.OtpIssued.Inc()

	if err := s.sender.Send(ctx, phone, code); err != nil {
		// The challenge is already stored, so the code stays valid. Deployment
		// policy treats this as non-fatal.
		s.log.WarnContext(ctx, "otp delivery failed",
			slog.String("phone", logger.MaskPhone(phone)),
			slog.Any("error", err),
		)
	}

	result := &SendOtpResult{
		ExpiresIn:  s.otp.TTL(),
		RetryAfter: s.otpCooldown,
	}
	if s.devMode {
		result.DevCode = code
	}
	return result, nil
}

// VerifyOtp checks a code without touching users or tokens. This is the
// standalone verification operation, distinct from Login.
func (s *AuthService) VerifyOtp(ctx context.Context, phone, code string) error {
	phone, err := CanonicalizePhone(phone)
	if err != nil {
		return err
	}
	if err := validateCode(code); err != nil {
		return err
	}
	return s.verifyChallenge(ctx, phone, code)
}

// Login verifies the code, creates or touches the user, issues a token pair
// and decides whether profile completion is required.
func (s *AuthService) Login(ctx context.Context, phone, code string) (*Session, error) {
	phone, err := CanonicalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if err := validateCode(code); err != nil {
		return nil, err
	}
	if err := s.verifyChallenge(ctx, phone, code); err != nil {
		return nil, err
	}

	user, created, err := s.users.UpsertOnLogin(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	session.IsNewUser = created

	metrics.Logins.WithLabelValues(strconv.FormatBool(created)).Inc()
	s.log.InfoContext(ctx, "login",
		slog.String("user_id", user.ID.String()),
		slog.Bool("new_user", created),
	)
	return session, nil
}

// Refresh rotates the refresh token and returns a fresh session. IsNewUser is
// always false here: holding a refresh token implies the user exists.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string) (*Session, error) {
	if rawRefreshToken == "" {
		return nil, Validation("refresh_token is required")
	}

	user, newRaw, err := s.tokens.Rotate(ctx, rawRefreshToken)
	if err != nil {
		return nil, err
	}
	metrics.TokenRotations.Inc()

	accessToken, err := s.tokens.SignAccessToken(user.ID, user.PhoneNumber)
	if err != nil {
		return nil, err
	}

	exists, required := s.profileDecision(ctx, user.ID)
	return &Session{
		AccessToken:               accessToken,
		RefreshToken:              newRaw,
		ExpiresIn:                 s.tokens.AccessTTL(),
		UserID:                    user.ID,
		PhoneNumber:               user.PhoneNumber,
		IsNewUser:                 false,
		ProfileExists:             exists,
		ProfileCompletionRequired: required,
	}, nil
}

// Logout revokes the given refresh token, or every token of the subject when
// only an access token is supplied. Revoking an already-revoked or absent
// refresh token still reports success.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if refreshToken != "" {
		if _, err := s.tokens.RevokeOne(ctx, refreshToken); err != nil {
			return err
		}
		return nil
	}
	if accessToken != "" {
		userID, _, err := s.tokens.VerifyAccessToken(accessToken)
		if err != nil {
			return err
		}
		n, err := s.tokens.RevokeAll(ctx, userID)
		if err != nil {
			return err
		}
		s.log.InfoContext(ctx, "logout revoked all sessions",
			slog.String("user_id", userID.String()),
			slog.Int64("revoked", n),
		)
		return nil
	}
	return Validation("either refresh_token or an access token is required")
}

func (s *AuthService) verifyChallenge(ctx context.Context, phone, code string) error {
	res, err := s.otp.Verify(ctx, phone, code)
	if err != nil {
		return err
	}
	metrics.OtpVerifications.WithLabelValues(res.Status.String()).Inc()
	switch res.Status {
	case model.OtpVerifySuccess:
		return nil
	case model.OtpVerifyNotFound:
		return ErrOtpNotFoundOrExpired
	case model.OtpVerifyMaxAttempts:
		return ErrOtpMaxAttempts
	case model.OtpVerifyMismatch:
		return OtpMismatch(res.AttemptsRemaining)
	default:
		return fmt.Errorf("unexpected verify status %d", res.Status)
	}
}

func (s *AuthService) issueSession(ctx context.Context, user model.User) (*Session, error) {
	accessToken, err := s.tokens.SignAccessToken(user.ID, user.PhoneNumber)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	exists, required := s.profileDecision(ctx, user.ID)
	return &Session{
		AccessToken:               accessToken,
		RefreshToken:              refreshToken,
		ExpiresIn:                 s.tokens.AccessTTL(),
		UserID:                    user.ID,
		PhoneNumber:               user.PhoneNumber,
		ProfileExists:             exists,
		ProfileCompletionRequired: required,
	}, nil
}

// profileDecision queries the tracker. A tracker failure degrades to
// "completion required" with a warning; it never fabricates a complete
// profile.
func (s *AuthService) profileDecision(ctx context.Context, userID uuid.UUID) (exists bool, required bool) {
	exists, err := s.profiles.Exists(ctx, userID)
	if err != nil {
		s.log.WarnContext(ctx, "profile lookup failed",
			slog.String("user_id", userID.String()),
			slog.Any("error", err),
		)
		return false, true
	}
	if !exists {
		return false, true
	}
	pct, err := s.profiles.CompletionPercentage(ctx, userID)
	if err != nil {
		s.log.WarnContext(ctx, "profile completion lookup failed",
			slog.String("user_id", userID.String()),
			slog.Any("error", err),
		)
		return true, true
	}
	return true, pct < s.completionThreshold
}

func validateCode(code string) error {
	if len(code) < 4 || len(code) > 8 {
		return Validation("otp_code must be between 4 and 8 characters")
	}
	return nil
}
