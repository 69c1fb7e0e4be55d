package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/crypto"
	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/store"
	"github.com/oneone404/One-Shield-sub000/internal/tenancy"
)

// defaultOrgMaxAgents is the device quota assigned when an organization
// tier account registers without specifying one.
const defaultOrgMaxAgents = 50

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type registerRequest struct {
	OrgName   string `json:"org_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name,omitempty"`
	Tier      string `json:"tier,omitempty"`
	MaxAgents int    `json:"max_agents,omitempty"`
}

type registerResponse struct {
	Token        string               `json:"token"`
	User         *models.User         `json:"user"`
	Organization *models.Organization `json:"organization"`
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, r, apperror.Validation("Email and password are required"))
		return
	}

	user, err := rt.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if user == nil {
		// Burn comparable time so the response does not reveal whether
		// the email exists.
		crypto.VerifyDummy(req.Password)
		writeError(w, r, apperror.InvalidCredentials())
		return
	}

	ok, err := crypto.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}
	if !ok {
		writeError(w, r, apperror.InvalidCredentials())
		return
	}

	if err := rt.store.TouchLastLogin(r.Context(), user.ID); err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	token, err := rt.jwt.Mint(user)
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}

	rt.audit(r, user.OrgID, user.ID, "auth.login", "user", user.ID, nil)
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}

func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.OrgName = strings.TrimSpace(req.OrgName)
	if req.OrgName == "" || req.Email == "" || req.Password == "" {
		writeError(w, r, apperror.Validation("Organization name, email, and password are required"))
		return
	}
	if err := crypto.ValidatePassword(req.Password); err != nil {
		writeError(w, r, apperror.Validation(err.Error()))
		return
	}

	tier := tenancy.DefaultTier
	if req.Tier != "" {
		parsed, err := tenancy.Parse(req.Tier)
		if err != nil {
			writeError(w, r, apperror.Validation("Invalid tier"))
			return
		}
		tier = parsed
	}
	maxAgents := tenancy.MaxDevices(tier, req.MaxAgents)
	if maxAgents <= 0 {
		maxAgents = defaultOrgMaxAgents
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}

	org := &models.Organization{
		ID:        uuid.NewString(),
		Name:      req.OrgName,
		MaxAgents: maxAgents,
		Tier:      tier,
	}
	user := &models.User{
		ID:           uuid.NewString(),
		OrgID:        org.ID,
		Email:        req.Email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := rt.store.RegisterAccount(r.Context(), org, user); err != nil {
		if store.IsUniqueViolation(err) {
			writeError(w, r, apperror.AlreadyExists("Email is already registered"))
			return
		}
		writeError(w, r, storeErr(err))
		return
	}

	token, err := rt.jwt.Mint(user)
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}

	rt.audit(r, org.ID, user.ID, "auth.register", "organization", org.ID,
		map[string]string{"tier": string(tier)})
	writeJSON(w, http.StatusCreated, registerResponse{Token: token, User: user, Organization: org})
}
