package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/tenancy"
)

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"org_name": "Acme Corp",
		"email":    "admin@acme.test",
		"password": testPassword,
		"name":     "Dana",
		"tier":     "organization",
	})
	wantStatus(t, rec, http.StatusCreated)
	var created registerResponse
	decodeBody(t, rec, &created)
	if created.Token == "" {
		t.Error("no session token issued")
	}
	if created.User.Role != models.RoleAdmin || created.User.Email != "admin@acme.test" {
		t.Errorf("user = %+v", created.User)
	}
	if created.Organization.Tier != tenancy.TierOrganization || created.Organization.MaxAgents != defaultOrgMaxAgents {
		t.Errorf("org = tier %q max_agents %d", created.Organization.Tier, created.Organization.MaxAgents)
	}

	loginRec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "admin@acme.test",
		"password": testPassword,
	})
	wantStatus(t, loginRec, http.StatusOK)
	var session sessionResponse
	decodeBody(t, loginRec, &session)
	if session.Token == "" || session.User.ID != created.User.ID {
		t.Errorf("login session = %+v", session)
	}
	if session.User.LastLogin == nil {
		t.Error("last_login not touched")
	}

	// The minted JWT works against a protected route.
	meRec := e.do(t, http.MethodGet, "/api/v1/organization", session.Token, nil)
	wantStatus(t, meRec, http.StatusOK)
}

func TestLoginRefusals(t *testing.T) {
	e := newTestEnv(t)
	e.registerOrg(t, "Acme Corp", "admin@acme.test")

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "admin@acme.test",
		"password": "wrong-password",
	})
	wantError(t, rec, http.StatusUnauthorized, "Invalid email or password")

	// Unknown accounts get the same answer as wrong passwords.
	rec = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "nobody@acme.test",
		"password": "wrong-password",
	})
	wantError(t, rec, http.StatusUnauthorized, "Invalid email or password")

	rec = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "admin@acme.test",
	})
	wantError(t, rec, http.StatusBadRequest, "Email and password are required")
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":    "admin@acme.test",
		"password": testPassword,
	})
	wantError(t, rec, http.StatusBadRequest, "Organization name, email, and password are required")

	rec = e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"org_name": "Acme Corp",
		"email":    "admin@acme.test",
		"password": "short",
	})
	wantStatus(t, rec, http.StatusBadRequest)

	rec = e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"org_name": "Acme Corp",
		"email":    "admin@acme.test",
		"password": testPassword,
		"tier":     "platinum",
	})
	wantError(t, rec, http.StatusBadRequest, "Invalid tier")

	e.registerOrg(t, "Acme Corp", "admin@acme.test")
	rec = e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"org_name": "Acme Again",
		"email":    "admin@acme.test",
		"password": testPassword,
	})
	wantError(t, rec, http.StatusConflict, "Email is already registered")

	// Email uniqueness is case-insensitive.
	rec = e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"org_name": "Acme Again",
		"email":    "Admin@ACME.test",
		"password": testPassword,
	})
	wantError(t, rec, http.StatusConflict, "Email is already registered")
}

func TestRegisterTierDefaults(t *testing.T) {
	e := newTestEnv(t)

	// Without a tier the account lands on the personal free plan with its
	// one-device quota, regardless of any requested max_agents.
	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"org_name":   "Home Lab",
		"email":      "solo@home.test",
		"password":   testPassword,
		"max_agents": 500,
	})
	wantStatus(t, rec, http.StatusCreated)
	var created registerResponse
	decodeBody(t, rec, &created)
	if created.Organization.Tier != tenancy.TierPersonalFree {
		t.Errorf("tier = %q, want personal_free", created.Organization.Tier)
	}
	if created.Organization.MaxAgents != 1 {
		t.Errorf("max_agents = %d, want 1", created.Organization.MaxAgents)
	}

	// The legacy alias normalizes on write.
	rec = e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"org_name": "Enterprise Corp",
		"email":    "admin@enterprise.test",
		"password": testPassword,
		"tier":     "enterprise",
	})
	wantStatus(t, rec, http.StatusCreated)
	decodeBody(t, rec, &created)
	if created.Organization.Tier != tenancy.TierOrganization {
		t.Errorf("enterprise alias mapped to %q", created.Organization.Tier)
	}
}

func TestResponsesNeverLeakPasswordHashes(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"org_name": "Acme Corp",
		"email":    "admin@acme.test",
		"password": testPassword,
		"tier":     "organization",
	})
	wantStatus(t, rec, http.StatusCreated)
	if body := rec.Body.String(); strings.Contains(body, "argon2") || strings.Contains(body, "password_hash") {
		t.Error("register response leaked credential material")
	}

	var created registerResponse
	decodeBody(t, rec, &created)
	usersRec := e.do(t, http.MethodGet, "/api/v1/users", created.Token, nil)
	wantStatus(t, usersRec, http.StatusOK)
	if body := usersRec.Body.String(); strings.Contains(body, "argon2") || strings.Contains(body, "password_hash") {
		t.Error("user listing leaked credential material")
	}
}
