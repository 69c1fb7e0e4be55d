package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

func TestMintTokenRequiresOrgAdmin(t *testing.T) {
	e := newTestEnv(t)
	session := e.registerOrg(t, "Acme Corp", "admin@acme.test")

	minted := e.mintToken(t, session.Token, map[string]any{
		"name":            "build-farm",
		"max_uses":        2,
		"expires_in_days": 1,
	})
	if minted.UsesCount != 0 || !minted.IsActive {
		t.Errorf("fresh token = uses %d active %v", minted.UsesCount, minted.IsActive)
	}
	if minted.MaxUses == nil || *minted.MaxUses != 2 {
		t.Errorf("max_uses = %v", minted.MaxUses)
	}
	if minted.ExpiresAt == nil || !minted.ExpiresAt.After(time.Now()) {
		t.Errorf("expires_at = %v", minted.ExpiresAt)
	}
	if minted.TokenPreview == "" || minted.TokenPreview == minted.Token {
		t.Errorf("token_preview = %q", minted.TokenPreview)
	}

	for _, role := range []models.Role{models.RoleAnalyst, models.RoleViewer} {
		_, token := e.seedUser(t, session.Organization.ID, role)
		rec := e.do(t, http.MethodPost, "/api/v1/tokens", token, map[string]any{"name": "nope"})
		wantError(t, rec, http.StatusForbidden, "Access denied")
	}
}

func TestMintTokenRequiresOrgPlan(t *testing.T) {
	e := newTestEnv(t)
	_, enrolled := e.personalEnroll(t, "a@b.test", testPassword, testHWID)

	// The personal user is an admin of their own org, but the tier does
	// not carry token minting.
	rec := e.do(t, http.MethodPost, "/api/v1/tokens", enrolled.JWT, map[string]any{"name": "home"})
	wantError(t, rec, http.StatusForbidden, "Enrollment tokens require an organization plan")
}

func TestMintTokenValidation(t *testing.T) {
	e := newTestEnv(t)
	session := e.registerOrg(t, "Acme Corp", "admin@acme.test")

	rec := e.do(t, http.MethodPost, "/api/v1/tokens", session.Token, map[string]any{"name": "  "})
	wantError(t, rec, http.StatusBadRequest, "Token name is required")

	rec = e.do(t, http.MethodPost, "/api/v1/tokens", session.Token, map[string]any{
		"name":     "negative",
		"max_uses": -1,
	})
	wantError(t, rec, http.StatusBadRequest, "expires_in_days and max_uses must be positive")

	rec = e.do(t, http.MethodPost, "/api/v1/tokens", session.Token, map[string]any{
		"name":            "negative",
		"expires_in_days": -7,
	})
	wantError(t, rec, http.StatusBadRequest, "expires_in_days and max_uses must be positive")

	// Unlimited tokens are legal: no expiry, no use cap.
	minted := e.mintToken(t, session.Token, map[string]any{"name": "forever"})
	if minted.ExpiresAt != nil || minted.MaxUses != nil {
		t.Errorf("unlimited token = expires %v max_uses %v", minted.ExpiresAt, minted.MaxUses)
	}
}

func TestRevokeTokenIdempotent(t *testing.T) {
	e := newTestEnv(t)
	session := e.registerOrg(t, "Acme Corp", "admin@acme.test")
	minted := e.mintToken(t, session.Token, map[string]any{"name": "short-lived"})

	rec := e.do(t, http.MethodDelete, "/api/v1/tokens/"+minted.ID, session.Token, nil)
	wantStatus(t, rec, http.StatusNoContent)

	// Revoking again is a no-op, not an error.
	rec = e.do(t, http.MethodDelete, "/api/v1/tokens/"+minted.ID, session.Token, nil)
	wantStatus(t, rec, http.StatusNoContent)

	listRec := e.do(t, http.MethodGet, "/api/v1/tokens", session.Token, nil)
	wantStatus(t, listRec, http.StatusOK)
	var list tokenListResponse
	decodeBody(t, listRec, &list)
	if len(list.Tokens) != 1 {
		t.Fatalf("tokens = %d", len(list.Tokens))
	}
	if list.Tokens[0].IsActive || list.Tokens[0].RevokedAt == nil {
		t.Errorf("revoked token = active %v revoked_at %v", list.Tokens[0].IsActive, list.Tokens[0].RevokedAt)
	}

	rec = e.do(t, http.MethodDelete, "/api/v1/tokens/no-such-token", session.Token, nil)
	wantError(t, rec, http.StatusNotFound, "Token not found")

	_, viewerToken := e.seedUser(t, session.Organization.ID, models.RoleViewer)
	rec = e.do(t, http.MethodDelete, "/api/v1/tokens/"+minted.ID, viewerToken, nil)
	wantError(t, rec, http.StatusForbidden, "Access denied")
}

func TestRevokeTokenCrossOrg(t *testing.T) {
	e := newTestEnv(t)
	a := e.registerOrg(t, "Org A", "admin@a.test")
	b := e.registerOrg(t, "Org B", "admin@b.test")
	minted := e.mintToken(t, a.Token, map[string]any{"name": "a-only"})

	// Another org's admin cannot see or revoke it.
	rec := e.do(t, http.MethodDelete, "/api/v1/tokens/"+minted.ID, b.Token, nil)
	wantError(t, rec, http.StatusNotFound, "Token not found")

	listRec := e.do(t, http.MethodGet, "/api/v1/tokens", b.Token, nil)
	wantStatus(t, listRec, http.StatusOK)
	var list tokenListResponse
	decodeBody(t, listRec, &list)
	if len(list.Tokens) != 0 {
		t.Errorf("org B lists %d foreign tokens", len(list.Tokens))
	}

	// Still usable by its own org.
	enrollRec, _ := e.orgEnroll(t, minted.Token, testHWID)
	wantStatus(t, enrollRec, http.StatusOK)
}
