package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nalauth/server/internal/auth"
	"github.com/nalauth/server/internal/logger"
	"github.com/nalauth/server/internal/middleware"
	"github.com/nalauth/server/internal/repo"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	svc      *auth.AuthService
	users    repo.UserRepo
	profiles auth.ProfileTracker
	log      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *auth.AuthService, users repo.UserRepo, profiles auth.ProfileTracker, log *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, users: users, profiles: profiles, log: log}
}

// sendOtpRequest is the request body for POST /auth/send-otp
type sendOtpRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// sendOtpResponse is the JSON response for send-otp
type sendOtpResponse struct {
	Message    string `json:"message"`
	ExpiresIn  int64  `json:"expires_in"`
	RetryAfter int64  `json:"retry_after"`
	DevOTP     string `json:"dev_otp,omitempty"`
}

// verifyOtpRequest is the request body for POST /auth/verify-otp and /auth/login
type verifyOtpRequest struct {
	PhoneNumber string `json:"phone_number"`
	OtpCode     string `json:"otp_code"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
}

// sessionResponse is the JSON response for login and refresh
type sessionResponse struct {
	AccessToken               string       `json:"access_token"`
	RefreshToken              string       `json:"refresh_token"`
	TokenType                 string       `json:"token_type"`
	ExpiresIn                 int64        `json:"expires_in"`
	User                      userResponse `json:"user"`
	IsNewUser                 bool         `json:"is_new_user"`
	ProfileExists             bool         `json:"profile_exists"`
	ProfileCompletionRequired bool         `json:"profile_completion_required"`
}

// HandleSendOtp handles POST /auth/send-otp
func (h *AuthHandler) HandleSendOtp(w http.ResponseWriter, r *http.Request) {
	var req sendOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithDomainError(w, auth.Validation("invalid request body"))
		return
	}

	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" {
		respondWithDomainError(w, auth.Validation("phone_number is required"))
		return
	}

	result, err := h.svc.SendOtp(r.Context(), req.PhoneNumber)
	if err != nil {
		h.respondWithError(w, r, req.PhoneNumber, "send otp failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, sendOtpResponse{
		Message:    "otp_sent",
		ExpiresIn:  int64(result.ExpiresIn.Seconds()),
		RetryAfter: int64(result.RetryAfter.Seconds()),
		DevOTP:     result.DevCode,
	})
}

// HandleVerifyOtp handles POST /auth/verify-otp. It checks the code without
// creating a user or issuing tokens.
func (h *AuthHandler) HandleVerifyOtp(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeVerifyRequest(w, r)
	if !ok {
		return
	}

	if err := h.svc.VerifyOtp(r.Context(), req.PhoneNumber, req.OtpCode); err != nil {
		h.respondWithError(w, r, req.PhoneNumber, "otp verification failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "otp_verified"})
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeVerifyRequest(w, r)
	if !ok {
		return
	}

	session, err := h.svc.Login(r.Context(), req.PhoneNumber, req.OtpCode)
	if err != nil {
		h.respondWithError(w, r, req.PhoneNumber, "login failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessionToResponse(session))
}

// refreshRequest is the request body for POST /auth/refresh
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithDomainError(w, auth.Validation("invalid request body"))
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)

	session, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondWithError(w, r, "", "refresh failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessionToResponse(session))
}

// logoutRequest is the request body for POST /auth/logout
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleLogout handles POST /auth/logout. A refresh token in the body revokes
// that session; otherwise a bearer access token revokes every session of the
// subject.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	// Body is optional when a bearer token is present.
	_ = json.NewDecoder(r.Body).Decode(&req)
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)

	accessToken, _ := middleware.BearerToken(r)

	if err := h.svc.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
		h.respondWithError(w, r, "", "logout failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "logged_out"})
}

// profileResponse is the JSON response for GET /auth/profile
type profileResponse struct {
	ID                          string `json:"id"`
	PhoneNumber                 string `json:"phone_number"`
	IsVerified                  bool   `json:"is_verified"`
	CreatedAt                   string `json:"created_at"`
	LastLogin                   string `json:"last_login,omitempty"`
	ProfileExists               bool   `json:"profile_exists"`
	ProfileCompletionPercentage int    `json:"profile_completion_percentage"`
}

// HandleProfile handles GET /auth/profile (protected)
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithDomainError(w, auth.ErrInvalidAccessToken)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, r, "", "profile lookup failed", err)
		return
	}

	exists, err := h.profiles.Exists(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, r, "", "profile lookup failed", err)
		return
	}
	var pct int
	if exists {
		pct, err = h.profiles.CompletionPercentage(r.Context(), userID)
		if err != nil {
			h.respondWithError(w, r, "", "profile lookup failed", err)
			return
		}
	}

	resp := profileResponse{
		ID:                          user.ID.String(),
		PhoneNumber:                 user.PhoneNumber,
		IsVerified:                  user.IsVerified,
		CreatedAt:                   user.CreatedAt.UTC().Format(time.RFC3339),
		ProfileExists:               exists,
		ProfileCompletionPercentage: pct,
	}
	if user.LastLogin != nil {
		resp.LastLogin = user.LastLogin.UTC().Format(time.RFC3339)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func decodeVerifyRequest(w http.ResponseWriter, r *http.Request) (verifyOtpRequest, bool) {
	var req verifyOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithDomainError(w, auth.Validation("invalid request body"))
		return req, false
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.OtpCode = strings.TrimSpace(req.OtpCode)
	if req.PhoneNumber == "" || req.OtpCode == "" {
		respondWithDomainError(w, auth.Validation("phone_number and otp_code are required"))
		return req, false
	}
	return req, true
}

func sessionToResponse(s *auth.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.ExpiresIn.Seconds()),
		User: userResponse{
			ID:          s.UserID.String(),
			PhoneNumber: s.PhoneNumber,
		},
		IsNewUser:                 s.IsNewUser,
		ProfileExists:             s.ProfileExists,
		ProfileCompletionRequired: s.ProfileCompletionRequired,
	}
}

// errorResponse is the JSON error envelope
type errorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfter        int64  `json:"retry_after,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

// respondWithError translates domain errors 1:1 to HTTP; everything else is
// an internal error with no detail leaked.
func (h *AuthHandler) respondWithError(w http.ResponseWriter, r *http.Request, phone, msg string, err error) {
	if de, ok := auth.AsDomain(err); ok {
		respondWithDomainError(w, de)
		return
	}
	attrs := []any{slog.Any("error", err)}
	if phone != "" {
		attrs = append(attrs, slog.String("phone", logger.MaskPhone(phone)))
	}
	h.log.ErrorContext(r.Context(), msg, attrs...)
	respondWithJSON(w, http.StatusInternalServerError, errorResponse{
		Error: "internal server error",
		Code:  "INTERNAL_ERROR",
	})
}

func respondWithDomainError(w http.ResponseWriter, de *auth.DomainError) {
	resp := errorResponse{Error: de.Message, Code: de.Code}
	if de.Code == auth.CodeRateLimited {
		resp.RetryAfter = int64(de.RetryAfter.Seconds())
	}
	if de.Code == auth.CodeInvalidOtp {
		remaining := de.AttemptsRemaining
		resp.AttemptsRemaining = &remaining
	}
	respondWithJSON(w, statusForCode(de.Code), resp)
}

func statusForCode(code string) int {
	switch code {
	case auth.CodeRateLimited:
		return http.StatusTooManyRequests
	case auth.CodeOtpExpired, auth.CodeInvalidOtp, auth.CodeMaxAttempts, auth.CodeValidation:
		return http.StatusBadRequest
	case auth.CodeInvalidRefreshToken, auth.CodeInvalidAccessToken:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
