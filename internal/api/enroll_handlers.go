package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/crypto"
	"github.com/oneone404/One-Shield-sub000/internal/metrics"
	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/store"
	"github.com/oneone404/One-Shield-sub000/internal/tenancy"
	"github.com/oneone404/One-Shield-sub000/pkg/agentapi"
)

// legacyOrgName is the organization that legacy shared-secret registrations
// land in. It is created on first use.
const legacyOrgName = "default"

func quotaMessage(qe *store.QuotaError) string {
	return fmt.Sprintf("Device limit reached (%d/%d). Upgrade to add more devices.", qe.Current, qe.Max)
}

// handlePersonalEnroll is the desktop flow: one call that signs up or logs
// in a personal user and admits the calling device.
func (rt *Router) handlePersonalEnroll(w http.ResponseWriter, r *http.Request) {
	var req agentapi.PersonalEnrollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" || req.HWID == "" {
		writeError(w, r, apperror.Validation("Email, password, and hwid are required"))
		return
	}

	user, err := rt.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if user == nil {
		rt.personalSignup(w, r, req)
		return
	}
	rt.personalLogin(w, r, req, user)
}

// personalLogin re-admits a device for an existing personal user, rotating
// its token if the hwid is already enrolled.
func (rt *Router) personalLogin(w http.ResponseWriter, r *http.Request, req agentapi.PersonalEnrollRequest, user *models.User) {
	ok, err := crypto.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}
	if !ok {
		metrics.RecordEnrollment("personal", "refused")
		writeError(w, r, apperror.InvalidCredentials())
		return
	}

	org, err := rt.store.GetOrganization(r.Context(), user.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if org == nil {
		writeError(w, r, apperror.Internal(fmt.Errorf("organization %q for user %s not found", user.OrgID, user.ID)))
		return
	}
	if !tenancy.IsPersonal(org.Tier) {
		// Organization-tier agents enroll with minted tokens, never with
		// a member's credentials.
		metrics.RecordEnrollment("personal", "refused")
		writeError(w, r, apperror.Forbidden())
		return
	}

	plaintext, hash, err := crypto.GenerateAgentToken()
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}
	seed := store.EndpointSeed{
		ID:           uuid.NewString(),
		HWID:         req.HWID,
		Hostname:     req.Hostname,
		OSType:       req.OSType,
		OSVersion:    req.OSVersion,
		AgentVersion: req.AgentVersion,
		IPAddress:    clientIP(r),
		TokenHash:    hash,
	}
	endpoint, rotated, err := rt.store.AdmitEndpoint(r.Context(), org.ID, seed, org.MaxDevices())
	if err != nil {
		var qe *store.QuotaError
		if errors.As(err, &qe) {
			metrics.RecordEnrollment("personal", "quota")
			writeError(w, r, apperror.Validation(quotaMessage(qe)))
			return
		}
		writeError(w, r, storeErr(err))
		return
	}

	if err := rt.store.TouchLastLogin(r.Context(), user.ID); err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	jwt, err := rt.jwt.Mint(user)
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}

	outcome := "created"
	if rotated {
		outcome = "rotated"
	}
	metrics.RecordEnrollment("personal", outcome)
	rt.audit(r, org.ID, user.ID, "enroll.personal", "endpoint", endpoint.ID,
		map[string]any{"hwid": req.HWID, "rotated": rotated})

	writeJSON(w, http.StatusOK, agentapi.PersonalEnrollResponse{
		UserID:     user.ID,
		JWT:        jwt,
		AgentID:    endpoint.ID,
		AgentToken: plaintext,
		OrgID:      org.ID,
		OrgName:    org.Name,
		Tier:       string(org.Tier),
		IsNewUser:  false,
	})
}

// personalSignup creates a personal_free org, its admin user, and the first
// endpoint in one transaction.
func (rt *Router) personalSignup(w http.ResponseWriter, r *http.Request, req agentapi.PersonalEnrollRequest) {
	if err := crypto.ValidatePassword(req.Password); err != nil {
		writeError(w, r, apperror.Validation(err.Error()))
		return
	}
	passwordHash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}
	plaintext, tokenHash, err := crypto.GenerateAgentToken()
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}

	org := &models.Organization{
		ID:        uuid.NewString(),
		Name:      "Personal - " + req.Email,
		MaxAgents: 1,
		Tier:      tenancy.TierPersonalFree,
	}
	user := &models.User{
		ID:           uuid.NewString(),
		OrgID:        org.ID,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(req.Name),
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	seed := store.EndpointSeed{
		ID:           uuid.NewString(),
		HWID:         req.HWID,
		Hostname:     req.Hostname,
		OSType:       req.OSType,
		OSVersion:    req.OSVersion,
		AgentVersion: req.AgentVersion,
		IPAddress:    clientIP(r),
		TokenHash:    tokenHash,
	}

	endpoint, err := rt.store.RegisterPersonal(r.Context(), org, user, seed)
	if err != nil {
		if store.IsUniqueViolation(err) {
			// Lost a race with a concurrent signup for the same email.
			metrics.RecordEnrollment("personal", "refused")
			writeError(w, r, apperror.AlreadyExists("Email is already registered"))
			return
		}
		writeError(w, r, storeErr(err))
		return
	}

	jwt, err := rt.jwt.Mint(user)
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}

	metrics.RecordEnrollment("personal", "created")
	rt.audit(r, org.ID, user.ID, "enroll.personal", "endpoint", endpoint.ID,
		map[string]any{"hwid": req.HWID, "is_new_user": true})

	writeJSON(w, http.StatusOK, agentapi.PersonalEnrollResponse{
		UserID:     user.ID,
		JWT:        jwt,
		AgentID:    endpoint.ID,
		AgentToken: plaintext,
		OrgID:      org.ID,
		OrgName:    org.Name,
		Tier:       string(org.Tier),
		IsNewUser:  true,
	})
}

// handleOrgEnroll admits a headless agent carrying an enrollment token.
func (rt *Router) handleOrgEnroll(w http.ResponseWriter, r *http.Request) {
	var req agentapi.OrgEnrollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Token == "" || req.HWID == "" {
		writeError(w, r, apperror.Validation("Token and hwid are required"))
		return
	}

	plaintext, hash, err := crypto.GenerateAgentToken()
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}
	seed := store.EndpointSeed{
		ID:           uuid.NewString(),
		HWID:         req.HWID,
		Hostname:     req.Hostname,
		OSType:       req.OSType,
		OSVersion:    req.OSVersion,
		AgentVersion: req.AgentVersion,
		IPAddress:    clientIP(r),
		TokenHash:    hash,
	}

	result, err := rt.store.EnrollWithToken(r.Context(), req.Token, seed)
	if err != nil {
		if errors.Is(err, store.ErrTokenRefused) {
			metrics.RecordEnrollment("org", "refused")
			writeError(w, r, apperror.TokenInvalid())
			return
		}
		var qe *store.QuotaError
		if errors.As(err, &qe) {
			metrics.RecordEnrollment("org", "quota")
			writeError(w, r, apperror.Validation(quotaMessage(qe)))
			return
		}
		writeError(w, r, storeErr(err))
		return
	}

	outcome := "created"
	if result.Rotated {
		outcome = "rotated"
	}
	metrics.RecordEnrollment("org", outcome)
	rt.audit(r, result.Org.ID, "", "enroll.token", "endpoint", result.Endpoint.ID,
		map[string]any{"hwid": req.HWID, "rotated": result.Rotated})

	writeJSON(w, http.StatusOK, agentapi.OrgEnrollResponse{
		AgentID:    result.Endpoint.ID,
		AgentToken: plaintext,
		OrgID:      result.Org.ID,
		OrgName:    result.Org.Name,
	})
}

// handleLegacyRegister is the pre-token shared-secret flow, kept for
// agents that predate enrollment tokens.
func (rt *Router) handleLegacyRegister(w http.ResponseWriter, r *http.Request) {
	var req agentapi.LegacyRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if rt.cfg.AgentSecret == "" {
		// No shared secret configured means the flow is disabled outright.
		writeError(w, r, apperror.Forbidden())
		return
	}
	// Hashing both sides first keeps the comparison constant time across
	// mismatched lengths.
	if !crypto.HashEqual(crypto.HashToken(req.RegistrationKey), crypto.HashToken(rt.cfg.AgentSecret)) {
		metrics.RecordAuthFailure("agent_secret")
		writeError(w, r, apperror.Unauthorized())
		return
	}
	if req.Hostname == "" {
		writeError(w, r, apperror.Validation("Hostname is required"))
		return
	}
	hwid := req.HWID
	if hwid == "" {
		// Old agents never sent one; a random value still satisfies the
		// (org, hwid) uniqueness the admission path relies on.
		hwid = uuid.NewString()
	}

	org, err := rt.legacyOrg(r)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}

	plaintext, hash, err := crypto.GenerateAgentToken()
	if err != nil {
		writeError(w, r, apperror.Internal(err))
		return
	}
	seed := store.EndpointSeed{
		ID:           uuid.NewString(),
		HWID:         hwid,
		Hostname:     req.Hostname,
		OSType:       req.OSType,
		OSVersion:    req.OSVersion,
		AgentVersion: req.AgentVersion,
		IPAddress:    clientIP(r),
		TokenHash:    hash,
	}
	endpoint, rotated, err := rt.store.AdmitEndpoint(r.Context(), org.ID, seed, org.MaxDevices())
	if err != nil {
		var qe *store.QuotaError
		if errors.As(err, &qe) {
			metrics.RecordEnrollment("legacy", "quota")
			writeError(w, r, apperror.Validation(quotaMessage(qe)))
			return
		}
		writeError(w, r, storeErr(err))
		return
	}

	outcome := "created"
	if rotated {
		outcome = "rotated"
	}
	metrics.RecordEnrollment("legacy", outcome)
	rt.audit(r, org.ID, "", "enroll.legacy", "endpoint", endpoint.ID,
		map[string]any{"hwid": hwid})

	writeJSON(w, http.StatusOK, agentapi.OrgEnrollResponse{
		AgentID:    endpoint.ID,
		AgentToken: plaintext,
		OrgID:      org.ID,
		OrgName:    org.Name,
	})
}

// legacyOrg fetches the shared legacy organization, creating it on first
// registration.
func (rt *Router) legacyOrg(r *http.Request) (*models.Organization, error) {
	org, err := rt.store.GetOrganizationByName(r.Context(), legacyOrgName)
	if err != nil || org != nil {
		return org, err
	}
	org = &models.Organization{
		ID:        uuid.NewString(),
		Name:      legacyOrgName,
		MaxAgents: defaultOrgMaxAgents,
		Tier:      tenancy.TierOrganization,
	}
	if err := rt.store.CreateOrganization(r.Context(), org); err != nil {
		return nil, err
	}
	return org, nil
}
