package api

import (
	"net/http"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/store"
)

type incidentListResponse struct {
	Incidents []*models.Incident `json:"incidents"`
	Total     int                `json:"total"`
}

func (rt *Router) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var filter store.IncidentFilter
	if v := q.Get("status"); v != "" {
		status, err := models.ParseIncidentStatus(v)
		if err != nil {
			writeError(w, r, apperror.Validation("Invalid status filter"))
			return
		}
		filter.Status = status
	}
	if v := q.Get("severity"); v != "" {
		severity, err := models.ParseSeverity(v)
		if err != nil {
			writeError(w, r, apperror.Validation("Invalid severity filter"))
			return
		}
		filter.Severity = severity
	}
	filter.EndpointID = q.Get("endpoint_id")
	filter.Limit = queryInt(r, "limit")

	incidents, err := rt.store.ListIncidents(r.Context(), p.OrgID, filter)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if incidents == nil {
		incidents = []*models.Incident{}
	}
	writeJSON(w, http.StatusOK, incidentListResponse{Incidents: incidents, Total: len(incidents)})
}

func (rt *Router) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	incident, ok := rt.scopedIncident(w, r, p.OrgID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

type updateIncidentRequest struct {
	Status     string  `json:"status"`
	AssignedTo *string `json:"assigned_to"`
}

func (rt *Router) handleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if !p.CanTriage() {
		rt.audit(r, p.OrgID, p.UserID, "rbac.denied", "route", r.Pattern, nil)
		writeError(w, r, apperror.Forbidden())
		return
	}
	var req updateIncidentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := models.ParseIncidentStatus(req.Status)
	if err != nil {
		writeError(w, r, apperror.Validation("Invalid incident status"))
		return
	}

	if _, ok := rt.scopedIncident(w, r, p.OrgID); !ok {
		return
	}
	incident, err := rt.store.UpdateIncidentStatus(r.Context(), r.PathValue("id"), status, req.AssignedTo)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if incident == nil {
		writeError(w, r, apperror.NotFound("Incident not found"))
		return
	}

	details := map[string]string{"status": string(status)}
	if req.AssignedTo != nil {
		details["assigned_to"] = *req.AssignedTo
	}
	rt.audit(r, p.OrgID, p.UserID, "incident.update", "incident", incident.ID, details)
	writeJSON(w, http.StatusOK, incident)
}

// scopedIncident loads the incident named in the path and enforces tenant
// ownership through its endpoint's org.
func (rt *Router) scopedIncident(w http.ResponseWriter, r *http.Request, orgID string) (*models.Incident, bool) {
	incident, owner, err := rt.store.GetIncidentScoped(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, storeErr(err))
		return nil, false
	}
	if incident == nil {
		writeError(w, r, apperror.NotFound("Incident not found"))
		return nil, false
	}
	if owner != orgID {
		writeError(w, r, apperror.Forbidden())
		return nil, false
	}
	return incident, true
}
