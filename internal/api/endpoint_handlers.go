package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/models"
)

type endpointListResponse struct {
	Endpoints []*models.Endpoint `json:"endpoints"`
	Total     int                `json:"total"`
}

func (rt *Router) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	endpoints, err := rt.store.ListEndpoints(r.Context(), p.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if endpoints == nil {
		endpoints = []*models.Endpoint{}
	}
	writeJSON(w, http.StatusOK, endpointListResponse{Endpoints: endpoints, Total: len(endpoints)})
}

func (rt *Router) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	endpoint, ok := rt.scopedEndpoint(w, r, p.OrgID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

func (rt *Router) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	p, ok := rt.requireAdmin(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	deleted, err := rt.store.DeleteEndpoint(r.Context(), id, p.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if !deleted {
		writeError(w, r, apperror.NotFound("Endpoint not found"))
		return
	}
	rt.audit(r, p.OrgID, p.UserID, "endpoint.delete", "endpoint", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

type heartbeatListResponse struct {
	Samples []*models.HeartbeatSample `json:"samples"`
}

func (rt *Router) handleListHeartbeats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	endpoint, ok := rt.scopedEndpoint(w, r, p.OrgID)
	if !ok {
		return
	}
	samples, err := rt.store.ListHeartbeatSamples(r.Context(), endpoint.ID, queryInt(r, "limit"))
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if samples == nil {
		samples = []*models.HeartbeatSample{}
	}
	writeJSON(w, http.StatusOK, heartbeatListResponse{Samples: samples})
}

type enqueueCommandRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (rt *Router) handleEnqueueCommand(w http.ResponseWriter, r *http.Request) {
	p, ok := rt.requireAdmin(w, r)
	if !ok {
		return
	}
	endpoint, ok := rt.scopedEndpoint(w, r, p.OrgID)
	if !ok {
		return
	}
	var req enqueueCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := models.ParseCommandKind(req.Type)
	if err != nil {
		writeError(w, r, apperror.Validation("Invalid command type"))
		return
	}

	cmd := &models.AgentCommand{
		ID:         uuid.NewString(),
		EndpointID: endpoint.ID,
		Kind:       kind,
		Payload:    req.Payload,
		CreatedBy:  p.UserID,
	}
	if err := rt.store.EnqueueCommand(r.Context(), cmd); err != nil {
		writeError(w, r, storeErr(err))
		return
	}

	rt.audit(r, p.OrgID, p.UserID, "command.enqueue", "endpoint", endpoint.ID,
		map[string]string{"command_id": cmd.ID, "type": string(kind)})
	writeJSON(w, http.StatusCreated, cmd)
}

type commandListResponse struct {
	Commands []*models.AgentCommand `json:"commands"`
}

func (rt *Router) handleListCommands(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	endpoint, ok := rt.scopedEndpoint(w, r, p.OrgID)
	if !ok {
		return
	}
	commands, err := rt.store.ListCommands(r.Context(), endpoint.ID, queryInt(r, "limit"))
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if commands == nil {
		commands = []*models.AgentCommand{}
	}
	writeJSON(w, http.StatusOK, commandListResponse{Commands: commands})
}

// scopedEndpoint loads the endpoint named in the path and enforces tenant
// ownership: unknown ids 404, ids owned by another org 403. A response has
// already been written when ok is false.
func (rt *Router) scopedEndpoint(w http.ResponseWriter, r *http.Request, orgID string) (*models.Endpoint, bool) {
	endpoint, err := rt.store.GetEndpoint(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, storeErr(err))
		return nil, false
	}
	if endpoint == nil {
		writeError(w, r, apperror.NotFound("Endpoint not found"))
		return nil, false
	}
	if endpoint.OrgID != orgID {
		writeError(w, r, apperror.Forbidden())
		return nil, false
	}
	return endpoint, true
}

// queryInt reads a non-negative integer query parameter, zero when absent
// or malformed.
func queryInt(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
