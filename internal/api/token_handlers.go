package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/crypto"
	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/tenancy"
)

// tokenView is the redacted token shape for list views: the preview shows
// enough to recognize a token without being usable.
type tokenView struct {
	*models.OrganizationToken
	TokenPreview string `json:"token_preview"`
}

type tokenListResponse struct {
	Tokens []tokenView `json:"tokens"`
	Total  int         `json:"total"`
}

func (rt *Router) handleListTokens(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	tokens, err := rt.store.ListOrgTokens(r.Context(), p.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}

	views := make([]tokenView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, tokenView{OrganizationToken: t, TokenPreview: crypto.TokenPreview(t.Token)})
	}
	writeJSON(w, http.StatusOK, tokenListResponse{Tokens: views, Total: len(views)})
}

type mintTokenRequest struct {
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
	MaxUses       int    `json:"max_uses,omitempty"`
}

// mintTokenResponse is the only place the full token value ever appears.
type mintTokenResponse struct {
	*models.OrganizationToken
	Token        string `json:"token"`
	TokenPreview string `json:"token_preview"`
}

func (rt *Router) handleMintToken(w http.ResponseWriter, r *http.Request) {
	p, ok := rt.requireAdmin(w, r)
	if !ok {
		return
	}
	org, err := rt.store.GetOrganization(r.Context(), p.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if org == nil {
		writeError(w, r, apperror.NotFound("Organization not found"))
		return
	}
	if !tenancy.LimitsFor(org.Tier).CanMintTokens {
		writeError(w, r, apperror.New(apperror.KindForbidden, "Enrollment tokens require an organization plan"))
		return
	}

	var req mintTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, apperror.Validation("Token name is required"))
		return
	}
	if req.ExpiresInDays < 0 || req.MaxUses < 0 {
		writeError(w, r, apperror.Validation("expires_in_days and max_uses must be positive"))
		return
	}

	value, err := crypto.GenerateEnrollmentToken(p.OrgID)
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}
	token := &models.OrganizationToken{
		ID:        uuid.NewString(),
		OrgID:     p.OrgID,
		Token:     value,
		Name:      req.Name,
		IsActive:  true,
		CreatedBy: p.UserID,
	}
	if req.ExpiresInDays > 0 {
		expires := rt.now().UTC().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
		token.ExpiresAt = &expires
	}
	if req.MaxUses > 0 {
		token.MaxUses = &req.MaxUses
	}
	if err := rt.store.CreateOrgToken(r.Context(), token); err != nil {
		writeError(w, r, storeErr(err))
		return
	}

	rt.audit(r, p.OrgID, p.UserID, "token.create", "organization_token", token.ID,
		map[string]string{"name": token.Name})
	writeJSON(w, http.StatusCreated, mintTokenResponse{
		OrganizationToken: token,
		Token:             value,
		TokenPreview:      crypto.TokenPreview(value),
	})
}

func (rt *Router) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	p, ok := rt.requireAdmin(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	revoked, err := rt.store.RevokeOrgToken(r.Context(), id, p.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if !revoked {
		// Either the token is unknown to this org or it was already
		// revoked; only the former is an error.
		token, err := rt.store.GetOrgToken(r.Context(), id)
		if err != nil {
			writeError(w, r, storeErr(err))
			return
		}
		if token == nil || token.OrgID != p.OrgID {
			writeError(w, r, apperror.NotFound("Token not found"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	rt.audit(r, p.OrgID, p.UserID, "token.revoke", "organization_token", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
