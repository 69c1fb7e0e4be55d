// Package api implements the HTTP surface of the control plane: public
// auth and enrollment, the agent sync endpoints, and the authenticated
// dashboard API. All routes live under /api/v1.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/oneone404/One-Shield-sub000/internal/auth"
	"github.com/oneone404/One-Shield-sub000/internal/config"
	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/reports"
	"github.com/oneone404/One-Shield-sub000/internal/store"
)

// Deps carries the constructed dependencies of the HTTP layer.
type Deps struct {
	Config  *config.Config
	Store   *store.Store
	JWT     *auth.JWT
	Version string
}

// Router handles HTTP routing.
type Router struct {
	mux     *http.ServeMux
	cfg     *config.Config
	store   *store.Store
	jwt     *auth.JWT
	reports *reports.Builder
	version string
	now     func() time.Time
}

// NewRouter creates the API handler with all routes and middleware wired.
func NewRouter(deps Deps) http.Handler {
	rt := &Router{
		mux:     http.NewServeMux(),
		cfg:     deps.Config,
		store:   deps.Store,
		jwt:     deps.JWT,
		reports: reports.NewBuilder(deps.Store),
		version: deps.Version,
		now:     time.Now,
	}
	rt.setupRoutes()
	return rt.requests(rt.mux)
}

// setupRoutes configures all routes.
func (rt *Router) setupRoutes() {
	// Public
	rt.mux.HandleFunc("GET /health", rt.handleHealth)
	rt.mux.HandleFunc("GET /api/v1/health", rt.handleHealth)
	rt.mux.HandleFunc("GET /api/v1/version", rt.handleVersion)
	rt.mux.HandleFunc("POST /api/v1/auth/login", rt.handleLogin)
	rt.mux.HandleFunc("POST /api/v1/auth/register", rt.handleRegister)
	rt.mux.HandleFunc("POST /api/v1/personal/enroll", rt.handlePersonalEnroll)
	rt.mux.HandleFunc("POST /api/v1/agent/enroll", rt.handleOrgEnroll)
	rt.mux.HandleFunc("POST /api/v1/agent/register", rt.handleLegacyRegister)

	// Agent (bearer = agent token)
	rt.mux.HandleFunc("POST /api/v1/agent/heartbeat", rt.requireAgent(rt.handleHeartbeat))
	rt.mux.HandleFunc("POST /api/v1/agent/sync/baseline", rt.requireAgent(rt.handleBaselineSync))
	rt.mux.HandleFunc("POST /api/v1/agent/sync/incidents", rt.requireAgent(rt.handleIncidentSync))
	rt.mux.HandleFunc("GET /api/v1/agent/policy", rt.requireAgent(rt.handleAgentPolicy))

	// Dashboard (bearer = user JWT)
	rt.mux.HandleFunc("GET /api/v1/endpoints", rt.requireUser(rt.handleListEndpoints))
	rt.mux.HandleFunc("GET /api/v1/endpoints/{id}", rt.requireUser(rt.handleGetEndpoint))
	rt.mux.HandleFunc("DELETE /api/v1/endpoints/{id}", rt.requireUser(rt.handleDeleteEndpoint))
	rt.mux.HandleFunc("GET /api/v1/endpoints/{id}/heartbeats", rt.requireUser(rt.handleListHeartbeats))
	rt.mux.HandleFunc("POST /api/v1/endpoints/{id}/commands", rt.requireUser(rt.handleEnqueueCommand))
	rt.mux.HandleFunc("GET /api/v1/endpoints/{id}/commands", rt.requireUser(rt.handleListCommands))

	rt.mux.HandleFunc("GET /api/v1/incidents", rt.requireUser(rt.handleListIncidents))
	rt.mux.HandleFunc("GET /api/v1/incidents/{id}", rt.requireUser(rt.handleGetIncident))
	rt.mux.HandleFunc("PATCH /api/v1/incidents/{id}", rt.requireUser(rt.handleUpdateIncident))

	rt.mux.HandleFunc("GET /api/v1/policies", rt.requireUser(rt.handleListPolicies))
	rt.mux.HandleFunc("POST /api/v1/policies", rt.requireUser(rt.handleCreatePolicy))
	rt.mux.HandleFunc("GET /api/v1/policies/current", rt.requireUser(rt.handleCurrentPolicy))
	rt.mux.HandleFunc("GET /api/v1/policies/{id}", rt.requireUser(rt.handleGetPolicy))
	rt.mux.HandleFunc("PUT /api/v1/policies/{id}", rt.requireUser(rt.handleUpdatePolicy))

	rt.mux.HandleFunc("GET /api/v1/tokens", rt.requireUser(rt.handleListTokens))
	rt.mux.HandleFunc("POST /api/v1/tokens", rt.requireUser(rt.handleMintToken))
	rt.mux.HandleFunc("DELETE /api/v1/tokens/{id}", rt.requireUser(rt.handleRevokeToken))

	rt.mux.HandleFunc("GET /api/v1/reports/executive", rt.requireUser(rt.handleExecutiveReport))
	rt.mux.HandleFunc("GET /api/v1/reports/executive/export", rt.requireUser(rt.handleExecutiveExport))
	rt.mux.HandleFunc("GET /api/v1/reports/compliance", rt.requireUser(rt.handleComplianceReport))

	rt.mux.HandleFunc("GET /api/v1/organization", rt.requireUser(rt.handleGetOrganization))
	rt.mux.HandleFunc("PATCH /api/v1/organization", rt.requireUser(rt.handleRenameOrganization))
	rt.mux.HandleFunc("GET /api/v1/users", rt.requireUser(rt.handleListUsers))
	rt.mux.HandleFunc("GET /api/v1/audit", rt.requireUser(rt.handleListAudit))

	// Observability
	rt.mux.Handle("GET /metrics", promhttp.Handler())
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := rt.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": rt.version,
	})
}

func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": rt.version,
		"runtime": runtime.Version(),
	})
}

// audit appends an audit row for a mutating operation. Failures are logged
// and never fail the request.
func (rt *Router) audit(r *http.Request, orgID, userID, action, resourceType, resourceID string, details any) {
	entry := &models.AuditEntry{
		OrgID:        orgID,
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    clientIP(r),
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			entry.Details = b
		}
	}
	if err := rt.store.AppendAudit(r.Context(), entry); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("Failed to append audit entry")
	}
}
