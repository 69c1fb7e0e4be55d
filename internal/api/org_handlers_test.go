package api

import (
	"net/http"
	"testing"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

func TestGetOrganizationUsage(t *testing.T) {
	e := newTestEnv(t)
	session := e.registerOrg(t, "Acme Corp", "admin@acme.test")
	minted := e.mintToken(t, session.Token, map[string]any{"name": "fleet"})
	_, _ = e.orgEnroll(t, minted.Token, testHWID)
	_, _ = e.orgEnroll(t, minted.Token, altHWID)

	rec := e.do(t, http.MethodGet, "/api/v1/organization", session.Token, nil)
	wantStatus(t, rec, http.StatusOK)
	var resp orgResponse
	decodeBody(t, rec, &resp)

	if resp.Organization.Name != "Acme Corp" {
		t.Errorf("org name = %q", resp.Organization.Name)
	}
	if resp.Usage.Endpoints != 2 || resp.Usage.OnlineEndpoints != 2 {
		t.Errorf("usage = %+v, want 2 endpoints online", resp.Usage)
	}
	if resp.Usage.MaxDevices != defaultOrgMaxAgents {
		t.Errorf("max_devices = %d, want %d", resp.Usage.MaxDevices, defaultOrgMaxAgents)
	}

	// Personal orgs report their fixed one-device quota.
	_, enrolled := e.personalEnroll(t, "solo@home.test", testPassword, "f"+altHWID[1:])
	rec = e.do(t, http.MethodGet, "/api/v1/organization", enrolled.JWT, nil)
	wantStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &resp)
	if resp.Usage.MaxDevices != 1 || resp.Usage.Endpoints != 1 {
		t.Errorf("personal usage = %+v", resp.Usage)
	}

	// Any role may read its own org.
	_, viewerToken := e.seedUser(t, session.Organization.ID, models.RoleViewer)
	rec = e.do(t, http.MethodGet, "/api/v1/organization", viewerToken, nil)
	wantStatus(t, rec, http.StatusOK)
}

func TestRenameOrganization(t *testing.T) {
	e := newTestEnv(t)
	session := e.registerOrg(t, "Acme Corp", "admin@acme.test")

	rec := e.do(t, http.MethodPatch, "/api/v1/organization", session.Token, map[string]any{
		"name": "Acme Security GmbH",
	})
	wantStatus(t, rec, http.StatusOK)
	var org models.Organization
	decodeBody(t, rec, &org)
	if org.Name != "Acme Security GmbH" {
		t.Errorf("renamed org = %q", org.Name)
	}

	getRec := e.do(t, http.MethodGet, "/api/v1/organization", session.Token, nil)
	var resp orgResponse
	decodeBody(t, getRec, &resp)
	if resp.Organization.Name != "Acme Security GmbH" {
		t.Errorf("rename not persisted: %q", resp.Organization.Name)
	}

	rec = e.do(t, http.MethodPatch, "/api/v1/organization", session.Token, map[string]any{
		"name": "   ",
	})
	wantError(t, rec, http.StatusBadRequest, "Organization name is required")

	_, viewerToken := e.seedUser(t, session.Organization.ID, models.RoleViewer)
	rec = e.do(t, http.MethodPatch, "/api/v1/organization", viewerToken, map[string]any{
		"name": "Viewer Corp",
	})
	wantError(t, rec, http.StatusForbidden, "Access denied")
}

func TestListUsers(t *testing.T) {
	e := newTestEnv(t)
	session := e.registerOrg(t, "Acme Corp", "admin@acme.test")
	e.seedUser(t, session.Organization.ID, models.RoleAnalyst)
	_, viewerToken := e.seedUser(t, session.Organization.ID, models.RoleViewer)

	rec := e.do(t, http.MethodGet, "/api/v1/users", viewerToken, nil)
	wantStatus(t, rec, http.StatusOK)
	var list userListResponse
	decodeBody(t, rec, &list)
	if list.Total != 3 {
		t.Fatalf("users = %d, want 3", list.Total)
	}
	roles := map[models.Role]int{}
	for _, u := range list.Users {
		roles[u.Role]++
	}
	if roles[models.RoleAdmin] != 1 || roles[models.RoleAnalyst] != 1 || roles[models.RoleViewer] != 1 {
		t.Errorf("roles = %v", roles)
	}

	// Memberships do not cross orgs.
	other := e.registerOrg(t, "Org B", "admin@b.test")
	rec = e.do(t, http.MethodGet, "/api/v1/users", other.Token, nil)
	wantStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &list)
	if list.Total != 1 {
		t.Errorf("org B users = %d, want 1", list.Total)
	}
}

func TestAuditLog(t *testing.T) {
	e := newTestEnv(t)
	session := e.registerOrg(t, "Acme Corp", "admin@acme.test")
	minted := e.mintToken(t, session.Token, map[string]any{"name": "lab"})
	_, _ = e.orgEnroll(t, minted.Token, testHWID)

	rec := e.do(t, http.MethodGet, "/api/v1/audit", session.Token, nil)
	wantStatus(t, rec, http.StatusOK)
	var list auditListResponse
	decodeBody(t, rec, &list)

	actions := map[string]bool{}
	for _, entry := range list.Entries {
		if entry.OrgID != session.Organization.ID {
			t.Errorf("foreign audit entry %s for org %s", entry.ID, entry.OrgID)
		}
		actions[entry.Action] = true
	}
	for _, want := range []string{"auth.register", "token.create", "enroll.token"} {
		if !actions[want] {
			t.Errorf("audit log missing %q (have %v)", want, actions)
		}
	}

	// Reading the log is an admin concern.
	_, viewerToken := e.seedUser(t, session.Organization.ID, models.RoleViewer)
	rec = e.do(t, http.MethodGet, "/api/v1/audit", viewerToken, nil)
	wantError(t, rec, http.StatusForbidden, "Access denied")

	// Another org's admin sees only their own trail.
	other := e.registerOrg(t, "Org B", "admin@b.test")
	rec = e.do(t, http.MethodGet, "/api/v1/audit", other.Token, nil)
	wantStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &list)
	for _, entry := range list.Entries {
		if entry.OrgID != other.Organization.ID {
			t.Errorf("org B sees entry for org %s", entry.OrgID)
		}
	}
}
