package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/oneone404/One-Shield-sub000/internal/auth"
	"github.com/oneone404/One-Shield-sub000/internal/config"
	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/store"
	"github.com/oneone404/One-Shield-sub000/pkg/agentapi"
)

const (
	testPassword = "correct-horse-battery"
	testHWID     = "9f2c1a7e5b3d8c4f6a1e9b7d3c5f8a2e4b6d8f1a3c5e7b9d1f3a5c7e9b2d4f6a"
	altHWID      = "1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b"
)

type testEnv struct {
	handler http.Handler
	store   *store.Store
	cfg     *config.Config
	jwt     *auth.JWT
}

// newTestEnv builds a router backed by a fresh on-disk SQLite database, with
// the full middleware stack in front.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "oneshield.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		DatabaseURL:        ":memory:",
		Port:               8080,
		JWTSecret:          "test-secret-0123456789abcdef0123456789abcdef",
		JWTExpirationHours: 1,
		AgentSecret:        "legacy-shared-secret",
		Environment:        "test",
	}
	jwt := auth.NewJWT(cfg.JWTSecret, cfg.JWTLifetime())
	handler := NewRouter(Deps{
		Config:  cfg,
		Store:   st,
		JWT:     jwt,
		Version: "test",
	})
	return &testEnv{handler: handler, store: st, cfg: cfg, jwt: jwt}
}

// do sends one request through the router. token, when non-empty, becomes
// the bearer credential.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// newRequest builds a request for tests that need to set headers themselves.
func newRequest(t *testing.T, method, path string, body io.Reader) *http.Request {
	t.Helper()
	if body == nil {
		body = http.NoBody
	}
	return httptest.NewRequest(method, path, body)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

/// wantError asserts the wire error shape: status code, message, and the
// echoed status field.
func wantError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	wantStatus(t, rec, status)
	var resp agentapi.ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Error != message {
		t.Errorf("error = %q, want %q", resp.Error, message)
	}
	if resp.Status != status {
		t.Errorf("error status field = %d, want %d", resp.Status, status)
	}
}

// registerOrg creates an organization-tier account and returns the session.
func (e *testEnv) registerOrg(t *testing.T, orgName, email string) registerResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"org_name": orgName,
		"email":    email,
		"password": testPassword,
		"tier":     "organization",
	})
	wantStatus(t, rec, http.StatusCreated)
	var resp registerResponse
	decodeBody(t, rec, &resp)
	return resp
}

// personalEnroll runs the desktop enrollment flow.
func (e *testEnv) personalEnroll(t *testing.T, email, password, hwid string) (*httptest.ResponseRecorder, agentapi.PersonalEnrollResponse) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/personal/enroll", "", agentapi.PersonalEnrollRequest{
		Email:        email,
		Password:     password,
		HWID:         hwid,
		Hostname:     "laptop-01",
		OSType:       "linux",
		OSVersion:    "6.8",
		AgentVersion: "1.0.0",
	})
	var resp agentapi.PersonalEnrollResponse
	if rec.Code == http.StatusOK {
		decodeBody(t, rec, &resp)
	}
	return rec, resp
}

// mintToken mints an enrollment token as the given user.
func (e *testEnv) mintToken(t *testing.T, jwt string, body map[string]any) mintTokenResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/tokens", jwt, body)
	wantStatus(t, rec, http.StatusCreated)
	var resp mintTokenResponse
	decodeBody(t, rec, &resp)
	return resp
}

// orgEnroll enrolls a headless agent with an enrollment token.
func (e *testEnv) orgEnroll(t *testing.T, token, hwid string) (*httptest.ResponseRecorder, agentapi.OrgEnrollResponse) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/agent/enroll", "", agentapi.OrgEnrollRequest{
		Token:        token,
		HWID:         hwid,
		Hostname:     "srv-" + hwid[:6],
		OSType:       "linux",
		AgentVersion: "1.0.0",
	})
	var resp agentapi.OrgEnrollResponse
	if rec.Code == http.StatusOK {
		decodeBody(t, rec, &resp)
	}
	return rec, resp
}

// seedUser inserts a user with the given role directly and mints a session
// for it. The API has no user-invite endpoint, so tests reach into the store.
func (e *testEnv) seedUser(t *testing.T, orgID string, role models.Role) (*models.User, string) {
	t.Helper()
	u := &models.User{
		ID:           uuid.NewString(),
		OrgID:        orgID,
		Email:        uuid.NewString()[:8] + "@example.test",
		PasswordHash: "unused",
		Role:         role,
		IsActive:     true,
	}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, err := e.jwt.Mint(u)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return u, token
}
