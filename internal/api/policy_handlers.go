package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/models"
)

type policyListResponse struct {
	Policies []*models.Policy `json:"policies"`
	Total    int              `json:"total"`
}

func (rt *Router) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	policies, err := rt.store.ListPolicies(r.Context(), p.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if policies == nil {
		policies = []*models.Policy{}
	}
	writeJSON(w, http.StatusOK, policyListResponse{Policies: policies, Total: len(policies)})
}

type createPolicyRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

func (rt *Router) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := rt.requireAdmin(w, r)
	if !ok {
		return
	}
	var req createPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, apperror.Validation("Policy name is required"))
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	policy := &models.Policy{
		ID:          uuid.NewString(),
		OrgID:       p.OrgID,
		Name:        req.Name,
		Description: req.Description,
		Config:      req.Config,
		Version:     1,
		IsActive:    active,
	}
	if err := rt.store.CreatePolicy(r.Context(), policy); err != nil {
		writeError(w, r, storeErr(err))
		return
	}

	rt.audit(r, p.OrgID, p.UserID, "policy.create", "policy", policy.ID,
		map[string]string{"name": policy.Name})
	writeJSON(w, http.StatusCreated, policy)
}

func (rt *Router) handleCurrentPolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	policy, err := rt.store.CurrentPolicy(r.Context(), p.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if policy == nil {
		writeError(w, r, apperror.NotFound("No active policy"))
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (rt *Router) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	policy, ok := rt.scopedPolicy(w, r, p.OrgID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

type updatePolicyRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Config      json.RawMessage `json:"config"`
	IsActive    *bool           `json:"is_active"`
}

// handleUpdatePolicy patches any subset of fields; whatever changes, the
// version advances by one so agents see the update on their next check.
func (rt *Router) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := rt.requireAdmin(w, r)
	if !ok {
		return
	}
	existing, ok := rt.scopedPolicy(w, r, p.OrgID)
	if !ok {
		return
	}
	var req updatePolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	name := existing.Name
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, r, apperror.Validation("Policy name is required"))
			return
		}
	}
	description := existing.Description
	if req.Description != nil {
		description = *req.Description
	}
	config := existing.Config
	if len(req.Config) > 0 {
		config = req.Config
	}
	active := existing.IsActive
	if req.IsActive != nil {
		active = *req.IsActive
	}

	policy, err := rt.store.UpdatePolicy(r.Context(), existing.ID, p.OrgID, name, description, config, active)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if policy == nil {
		writeError(w, r, apperror.NotFound("Policy not found"))
		return
	}

	rt.audit(r, p.OrgID, p.UserID, "policy.update", "policy", policy.ID,
		map[string]any{"version": policy.Version})
	writeJSON(w, http.StatusOK, policy)
}

// scopedPolicy loads the policy named in the path and enforces tenant
// ownership with a strict org check on the fetched row.
func (rt *Router) scopedPolicy(w http.ResponseWriter, r *http.Request, orgID string) (*models.Policy, bool) {
	policy, err := rt.store.GetPolicy(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, storeErr(err))
		return nil, false
	}
	if policy == nil {
		writeError(w, r, apperror.NotFound("Policy not found"))
		return nil, false
	}
	if policy.OrgID != orgID {
		writeError(w, r, apperror.Forbidden())
		return nil, false
	}
	return policy, true
}
