package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/metrics"
	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/pkg/agentapi"
)

// handleHeartbeat records liveness and resource metrics, then answers with
// the policy freshness check and at most one queued command.
func (rt *Router) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := endpointFrom(w, r)
	if !ok {
		return
	}
	var req agentapi.HeartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	agentVersion := req.AgentVersion
	if agentVersion == "" {
		agentVersion = endpoint.AgentVersion
	}
	if err := rt.store.RecordHeartbeat(r.Context(), endpoint.ID, clientIP(r), agentVersion, req.PolicyVersion); err != nil {
		writeError(w, r, storeErr(err))
		return
	}

	sample := &models.HeartbeatSample{
		EndpointID:    endpoint.ID,
		CPUPercent:    req.CPUPercent,
		MemoryPercent: req.MemoryPercent,
		DiskPercent:   req.DiskPercent,
		IncidentCount: req.IncidentCount,
		ProcessCount:  req.ProcessCount,
	}
	if err := rt.store.AppendHeartbeatSample(r.Context(), sample); err != nil {
		writeError(w, r, storeErr(err))
		return
	}

	policy, err := rt.store.CurrentPolicy(r.Context(), endpoint.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	currentVersion := 0
	if policy != nil {
		currentVersion = policy.Version
	}

	cmd, err := rt.store.PopPendingCommand(r.Context(), endpoint.ID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	var wireCmd *agentapi.Command
	if cmd != nil {
		wireCmd = commandToWire(cmd)
		metrics.RecordCommandDelivered(string(cmd.Kind))
	}

	metrics.RecordHeartbeat()
	writeJSON(w, http.StatusOK, agentapi.HeartbeatResponse{
		Status:          "ok",
		ServerTime:      rt.now().UTC(),
		HasPolicyUpdate: policy != nil && currentVersion > req.PolicyVersion,
		PolicyVersion:   currentVersion,
		Command:         wireCmd,
	})
}

// commandToWire flattens a stored command's payload into the tagged wire
// shape agents consume.
func commandToWire(cmd *models.AgentCommand) *agentapi.Command {
	out := &agentapi.Command{Type: string(cmd.Kind)}
	if len(cmd.Payload) == 0 {
		return out
	}
	var p struct {
		Version  int    `json:"version"`
		Service  string `json:"service"`
		URL      string `json:"url"`
		Checksum string `json:"checksum"`
	}
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		log.Warn().Err(err).Str("command_id", cmd.ID).Msg("Undecodable command payload")
		return out
	}
	out.Version = p.Version
	out.Service = p.Service
	out.URL = p.URL
	out.Checksum = p.Checksum
	return out
}

// handleBaselineSync stores the agent's behavioral baseline and mirrors
// hash and version onto the endpoint row.
func (rt *Router) handleBaselineSync(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := endpointFrom(w, r)
	if !ok {
		return
	}
	var req agentapi.BaselineSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.BaselineHash == "" || len(req.MeanValues) == 0 {
		writeError(w, r, apperror.Validation("Baseline hash and mean values are required"))
		return
	}

	baseline := &models.Baseline{
		ID:             uuid.NewString(),
		EndpointID:     endpoint.ID,
		MeanValues:     req.MeanValues,
		VarianceValues: req.VarianceValues,
		SampleCount:    req.SampleCount,
		Version:        req.Version,
	}
	if err := rt.store.UpsertBaseline(r.Context(), baseline); err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if err := rt.store.SetEndpointBaseline(r.Context(), endpoint.ID, req.BaselineHash, req.Version); err != nil {
		writeError(w, r, storeErr(err))
		return
	}

	writeJSON(w, http.StatusOK, agentapi.BaselineSyncResponse{Status: "ok", Version: req.Version})
}

// handleIncidentSync ingests a batch of agent-detected incidents. Each item
// stands alone: bad entries are logged and skipped, the rest commit, and
// the response reports how many landed. Re-sending a batch is safe because
// the agent-chosen ids upsert.
func (rt *Router) handleIncidentSync(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := endpointFrom(w, r)
	if !ok {
		return
	}
	var req agentapi.IncidentSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	synced := 0
	for _, in := range req.Incidents {
		if in.ID == "" || in.Title == "" {
			log.Warn().Str("endpoint_id", endpoint.ID).Msg("Incident without id or title skipped")
			continue
		}
		severity := models.SeverityLow
		if in.Severity != "" {
			parsed, err := models.ParseSeverity(in.Severity)
			if err != nil {
				log.Warn().Str("incident_id", in.ID).Str("severity", in.Severity).Msg("Incident with unknown severity skipped")
				continue
			}
			severity = parsed
		}

		inc := &models.Incident{
			ID:              in.ID,
			EndpointID:      endpoint.ID,
			Severity:        severity,
			Title:           in.Title,
			Description:     in.Description,
			MitreTechniques: in.MitreTechniques,
			ThreatClass:     in.ThreatClass,
			Confidence:      in.Confidence,
		}
		if in.CreatedAt > 0 {
			inc.CreatedAt = time.Unix(in.CreatedAt, 0).UTC()
		}

		written, err := rt.store.UpsertIncident(r.Context(), inc)
		if err != nil {
			log.Warn().Err(err).Str("incident_id", in.ID).Msg("Incident upsert failed")
			continue
		}
		if !written {
			// The id already belongs to another endpoint's incident.
			log.Warn().Str("incident_id", in.ID).Str("endpoint_id", endpoint.ID).Msg("Incident id collision ignored")
			continue
		}
		metrics.RecordIncidentIngested(string(severity))
		synced++
	}

	writeJSON(w, http.StatusOK, agentapi.IncidentSyncResponse{
		SyncedCount: synced,
		ServerTime:  rt.now().UTC(),
	})
}

// handleAgentPolicy hands the agent its org's current policy body and
// records the version it now knows.
func (rt *Router) handleAgentPolicy(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := endpointFrom(w, r)
	if !ok {
		return
	}
	policy, err := rt.store.CurrentPolicy(r.Context(), endpoint.OrgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	if policy == nil {
		writeError(w, r, apperror.NotFound("No active policy"))
		return
	}

	if err := rt.store.SetEndpointPolicyVersion(r.Context(), endpoint.ID, policy.Version); err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	writeJSON(w, http.StatusOK, agentapi.PolicyResponse{
		PolicyID: policy.ID,
		Name:     policy.Name,
		Version:  policy.Version,
		Config:   policy.Config,
	})
}
