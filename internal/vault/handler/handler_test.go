package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passq/internal/crypto"
	"passq/internal/mfa"
	"passq/internal/platform/middleware"
	"passq/internal/ratelimit"
	"passq/internal/token"
	"passq/internal/vault/device"
	"passq/internal/vault/service"
	"passq/internal/vault/store/analytics"
	"passq/internal/vault/store/policy"
	"passq/internal/vault/store/revocation"
	"passq/internal/vault/store/rules"
	"passq/internal/vault/store/secret"
	"passq/internal/vault/store/session"
	"passq/internal/vault/store/user"
)

const (
	testPassword   = "Correct-Horse7"
	testAdminToken = "test-admin-token"
	browserUA      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i + 7)
	}
	keyring, err := crypto.NewKeyring(map[uint8][]byte{1: key}, 1)
	require.NoError(t, err)

	signingKey := make([]byte, 32)
	for i := range signingKey {
		signingKey[i] = byte(i + 50)
	}
	tokens := token.New(signingKey, "passq", "passq", 15*time.Minute, 7*24*time.Hour)

	users := user.NewInMemory()
	events := analytics.NewInMemory()
	mfaService := mfa.New(users, keyring, ratelimit.NewInMemory(), events)

	vault := service.New(
		users, session.New(), secret.NewInMemory(), revocation.NewInMemory(),
		policy.NewInMemory(), tokens, keyring, device.NewService(true),
		service.WithAnalytics(events),
		service.WithRules(rules.NewInMemory()),
		service.WithMFA(mfaService),
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(vault, mfaService, logger)
	router := NewRouter(h, logger, func(r chi.Router) {
		r.Group(func(ar chi.Router) {
			ar.Use(middleware.RequireAdminToken(testAdminToken, logger))
			h.RegisterAdmin(ar)
		})
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, server *httptest.Server, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browserUA)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func registerAndLogin(t *testing.T, server *httptest.Server, email string) map[string]any {
	t.Helper()
	resp, _ := doJSON(t, server, http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "password": testPassword,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, server, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body
}

func TestAuthFlow(t *testing.T) {
	server := newTestServer(t)
	login := registerAndLogin(t, server, "alice@example.com")
	access := login["access_token"].(string)
	refresh := login["refresh_token"].(string)
	require.NotEmpty(t, access)
	assert.Equal(t, "Bearer", login["token_type"])

	t.Run("protected route requires bearer", func(t *testing.T) {
		resp, _ := doJSON(t, server, http.MethodGet, "/sessions", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("list sessions", func(t *testing.T) {
		resp, body := doJSON(t, server, http.MethodGet, "/sessions", access, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		sessions := body["sessions"].([]any)
		require.Len(t, sessions, 1)
		current := sessions[0].(map[string]any)
		assert.Equal(t, true, current["current"])
		assert.Equal(t, "desktop", current["device_type"])
	})

	t.Run("refresh rotates the pair", func(t *testing.T) {
		resp, body := doJSON(t, server, http.MethodPost, "/auth/token/refresh", "", map[string]string{
			"refresh_token": refresh,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEqual(t, refresh, body["refresh_token"])

		// Replaying the consumed token reports unauthorized.
		resp, errBody := doJSON(t, server, http.MethodPost, "/auth/token/refresh", "", map[string]string{
			"refresh_token": refresh,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "reuse_detected", errBody["kind"])
	})
}

func TestLoginRejected(t *testing.T) {
	server := newTestServer(t)
	registerAndLogin(t, server, "alice@example.com")

	resp, body := doJSON(t, server, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "Wrong-Pass1",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["kind"])
	assert.Equal(t, "invalid credentials", body["message"])
}

func TestSecretEndpoints(t *testing.T) {
	server := newTestServer(t)
	login := registerAndLogin(t, server, "alice@example.com")
	access := login["access_token"].(string)

	resp, created := doJSON(t, server, http.MethodPost, "/secrets", access, map[string]string{
		"name": "bank password", "value": "hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	secretID := created["secret_id"].(string)

	resp, read := doJSON(t, server, http.MethodGet, "/secrets/"+secretID, access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hunter2", read["value"])

	resp, listed := doJSON(t, server, http.MethodGet, "/secrets", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	secrets := listed["secrets"].([]any)
	require.Len(t, secrets, 1)
	_, hasValue := secrets[0].(map[string]any)["value"]
	assert.False(t, hasValue)

	resp, _ = doJSON(t, server, http.MethodDelete, "/secrets/"+secretID, access, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, errBody := doJSON(t, server, http.MethodGet, "/secrets/"+secretID, access, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "secret_not_found", errBody["kind"])
}

func TestMFAEndpoints(t *testing.T) {
	server := newTestServer(t)
	login := registerAndLogin(t, server, "alice@example.com")
	access := login["access_token"].(string)

	resp, setup := doJSON(t, server, http.MethodPost, "/mfa/setup", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	secret := setup["secret"].(string)
	require.NotEmpty(t, secret)
	require.Len(t, setup["backup_codes"].([]any), 10)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	resp, verified := doJSON(t, server, http.MethodPost, "/mfa/verify", access, map[string]string{"code": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, verified["verified"])

	t.Run("login now requires a code", func(t *testing.T) {
		resp, _ := doJSON(t, server, http.MethodPost, "/auth/login", "", map[string]string{
			"email": "alice@example.com", "password": testPassword,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)
		resp, _ = doJSON(t, server, http.MethodPost, "/auth/login", "", map[string]string{
			"email": "alice@example.com", "password": testPassword, "mfa_code": code,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	server := newTestServer(t)
	login := registerAndLogin(t, server, "alice@example.com")
	access := login["access_token"].(string)

	resp, _ := doJSON(t, server, http.MethodPost, "/auth/logout", access, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, server, http.MethodGet, "/sessions", access, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBarePathAliases(t *testing.T) {
	server := newTestServer(t)
	registerAndLogin(t, server, "alice@example.com")

	resp, login := doJSON(t, server, http.MethodPost, "/login", "", map[string]string{
		"email": "alice@example.com", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refresh := login["refresh_token"].(string)

	resp, rotated := doJSON(t, server, http.MethodPost, "/token/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, refresh, rotated["refresh_token"])

	access := rotated["access_token"].(string)
	resp, _ = doJSON(t, server, http.MethodPost, "/logout", access, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRevokeAllEndpoint(t *testing.T) {
	server := newTestServer(t)
	first := registerAndLogin(t, server, "alice@example.com")

	resp, _ := doJSON(t, server, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	access := first["access_token"].(string)
	resp, body := doJSON(t, server, http.MethodPost, "/auth/revoke-all", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["revoked_sessions"])
}

func TestAdminRulesEndpoints(t *testing.T) {
	server := newTestServer(t)

	adminDo := func(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, server.URL+path, &buf)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("X-Admin-Token", token)
		}
		resp, err := server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var decoded map[string]any
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &decoded))
		}
		return resp, decoded
	}

	t.Run("requires the admin token", func(t *testing.T) {
		resp, _ := adminDo(t, http.MethodGet, "/admin/rules", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, _ = adminDo(t, http.MethodGet, "/admin/rules", "wrong-token", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("create list and disable", func(t *testing.T) {
		resp, created := adminDo(t, http.MethodPost, "/admin/rules", testAdminToken, map[string]any{
			"name":       "curl logins",
			"rule_type":  "suspicious_client",
			"enabled":    true,
			"severity":   "high",
			"conditions": map[string]string{"field": "user_agent", "op": "contains", "value": "curl"},
			"actions":    []string{"notify"},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		ruleID := created["rule_id"].(string)
		require.NotEmpty(t, ruleID)

		resp, listed := adminDo(t, http.MethodGet, "/admin/rules", testAdminToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, listed["rules"].([]any), 1)

		resp, _ = adminDo(t, http.MethodPut, "/admin/rules/"+ruleID+"/enabled", testAdminToken,
			map[string]bool{"enabled": false})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, listed = adminDo(t, http.MethodGet, "/admin/rules", testAdminToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, listed["rules"])
	})

	t.Run("rejects malformed conditions", func(t *testing.T) {
		resp, errBody := adminDo(t, http.MethodPost, "/admin/rules", testAdminToken, map[string]any{
			"name": "bad", "rule_type": "x", "conditions": "not a tree",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_input", errBody["kind"])
	})
}
