package api

import (
	"net/http"
	"strings"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/models"
)

type orgUsage struct {
	Endpoints       int `json:"endpoints"`
	OnlineEndpoints int `json:"online_endpoints"`
	MaxDevices      int `json:"max_devices"`
}

type orgResponse struct {
	Organization *models.Organization `json:"organization"`
	Usage        orgUsage             `json:"usage"`
}

func (rt *Router) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	org, ok := rt.callerOrg(w, r, p.OrgID)
	if !ok {
		return
	}
	total, online, err := rt.store.CountEndpointsByStatus(r.Context(), org.ID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	writeJSON(w, http.StatusOK, orgResponse{
		Organization: org,
		Usage: orgUsage{
			Endpoints:       total,
			OnlineEndpoints: online,
			MaxDevices:      org.MaxDevices(),
		},
	})
}

type renameOrgRequest struct {
	Name string `json:"name"`
}

func (rt *Router) handleRenameOrganization(w http.ResponseWriter, r *http.Request) {
	p, ok := rt.requireAdmin(w, r)
	if !ok {
		return
	}
	var req renameOrgRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, apperror.Validation("Organization name is required"))
		return
	}

	if err := rt.store.RenameOrganization(r.Context(), p.OrgID, req.Name); err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	org, ok := rt.callerOrg(w, r, p.OrgID)
	if !ok {
		return
	}

	rt.audit(r, p.OrgID, p.UserID, "org.rename", "organization", p.OrgID,
		map[string]string{"name": req.Name})
	writeJSON(w, http.StatusOK, org)
}

type userListResponse struct {
	Users []*models.User `json:"users"`
	Total int            `json:"total"`
}

func (rt *Router) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	users, err := rt.store.ListUsers(r.Context(), p.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeJSON(w, http.StatusOK, userListResponse{Users: users, Total: len(users)})
}

type auditListResponse struct {
	Entries []*models.AuditEntry `json:"entries"`
	Total   int                  `json:"total"`
}

func (rt *Router) handleListAudit(w http.ResponseWriter, r *http.Request) {
	p, ok := rt.requireAdmin(w, r)
	if !ok {
		return
	}
	entries, err := rt.store.ListAudit(r.Context(), p.OrgID, queryInt(r, "limit"))
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditListResponse{Entries: entries, Total: len(entries)})
}
