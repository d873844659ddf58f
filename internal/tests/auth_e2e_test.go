package tests

import (
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e2ePhone = "+491609876543"

// TestAuthE2E runs the complete journey: send-otp, login, profile, refresh,
// logout. Uses httptest.NewServer (no real port). Deterministic: truncates
// before each section.
func TestAuthE2E(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping E2E test")
	}

	ts := newTestServer(t)
	baseURL := ts.BaseURL()
	client := ts.Server.Client()

	t.Run("A_FullJourney", func(t *testing.T) {
		ts.TruncateAuth(t)

		// send-otp
		otpRes := sendOtp(t, client, baseURL, e2ePhone)
		require.NotEmpty(t, otpRes.DevOTP)

		// login
		session := doLogin(t, client, baseURL, e2ePhone, otpRes.DevOTP)
		assert.True(t, session.IsNewUser)
		assert.True(t, session.ProfileCompletionRequired)

		// profile with the fresh access token
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/auth/profile", nil)
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
		respProfile, err := client.Do(req)
		require.NoError(t, err)
		profileBody := readBody(respProfile)
		respProfile.Body.Close()
		require.Equal(t, http.StatusOK, respProfile.StatusCode, "GET /auth/profile must return 200; body: %s", profileBody)
		var profile map[string]any
		require.NoError(t, json.Unmarshal([]byte(profileBody), &profile))
		assert.Equal(t, e2ePhone, profile["phone_number"])
		assert.Equal(t, true, profile["is_verified"])

		// refresh
		respRefresh, refreshBody := postJSON(t, client, baseURL+"/auth/refresh", map[string]string{
			"refresh_token": session.RefreshToken,
		})
		require.Equal(t, http.StatusOK, respRefresh.StatusCode, "refresh must succeed; body: %s", refreshBody)
		var rotated sessionResponse
		require.NoError(t, json.Unmarshal([]byte(refreshBody), &rotated))

		// the rotated access token still opens the protected route
		req2, _ := http.NewRequest(http.MethodGet, baseURL+"/auth/profile", nil)
		req2.Header.Set("Authorization", "Bearer "+rotated.AccessToken)
		respProfile2, err := client.Do(req2)
		require.NoError(t, err)
		respProfile2.Body.Close()
		assert.Equal(t, http.StatusOK, respProfile2.StatusCode)

		// logout with the refresh token
		respLogout, logoutBody := postJSON(t, client, baseURL+"/auth/logout", map[string]string{
			"refresh_token": rotated.RefreshToken,
		})
		assert.Equal(t, http.StatusOK, respLogout.StatusCode, "logout must succeed; body: %s", logoutBody)

		// the session is gone
		respDead, _ := postJSON(t, client, baseURL+"/auth/refresh", map[string]string{
			"refresh_token": rotated.RefreshToken,
		})
		assert.Equal(t, http.StatusUnauthorized, respDead.StatusCode, "refresh after logout must return 401")

		// logging out again is still a success
		respAgain, _ := postJSON(t, client, baseURL+"/auth/logout", map[string]string{
			"refresh_token": rotated.RefreshToken,
		})
		assert.Equal(t, http.StatusOK, respAgain.StatusCode, "logout is idempotent")
	})

	t.Run("B_LogoutViaAccessToken", func(t *testing.T) {
		ts.TruncateAuth(t)

		otpRes := sendOtp(t, client, baseURL, e2ePhone)
		session := doLogin(t, client, baseURL, e2ePhone, otpRes.DevOTP)

		// logout with only the bearer token revokes every session
		req, _ := http.NewRequest(http.MethodPost, baseURL+"/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
		respLogout, err := client.Do(req)
		require.NoError(t, err)
		logoutBody := readBody(respLogout)
		respLogout.Body.Close()
		assert.Equal(t, http.StatusOK, respLogout.StatusCode, "bearer logout must succeed; body: %s", logoutBody)

		respDead, _ := postJSON(t, client, baseURL+"/auth/refresh", map[string]string{
			"refresh_token": session.RefreshToken,
		})
		assert.Equal(t, http.StatusUnauthorized, respDead.StatusCode, "all sessions must be revoked")
	})

	t.Run("C_MetricsExposed", func(t *testing.T) {
		resp, err := client.Get(baseURL + "/metrics")
		require.NoError(t, err)
		body := readBody(resp)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "auth_otp_issued_total")
		assert.Contains(t, body, "auth_logins_total")
	})
}
