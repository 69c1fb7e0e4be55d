// Package agentapi defines the wire payloads exchanged between agents and
// the control plane. Server handlers and the agent client share these types
// so the two sides cannot drift.
package agentapi

import (
	"encoding/json"
	"time"
)

// PersonalEnrollRequest is the single opinionated signup/login/enroll call
// used by desktop installs. The server branches on whether the email exists.
type PersonalEnrollRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name,omitempty"`
	HWID         string `json:"hwid"`
	Hostname     string `json:"hostname"`
	OSType       string `json:"os_type"`
	OSVersion    string `json:"os_version"`
	AgentVersion string `json:"agent_version"`
}

// PersonalEnrollResponse carries both the user session and the agent
// identity. The agent token appears here once and is never shown again.
type PersonalEnrollResponse struct {
	UserID     string `json:"user_id"`
	JWT        string `json:"jwt"`
	AgentID    string `json:"agent_id"`
	AgentToken string `json:"agent_token"`
	OrgID      string `json:"org_id"`
	OrgName    string `json:"org_name"`
	Tier       string `json:"tier"`
	IsNewUser  bool   `json:"is_new_user"`
}

// OrgEnrollRequest enrolls a headless agent with an organization token.
type OrgEnrollRequest struct {
	Token        string `json:"token"`
	HWID         string `json:"hwid"`
	Hostname     string `json:"hostname"`
	OSType       string `json:"os_type"`
	OSVersion    string `json:"os_version"`
	AgentVersion string `json:"agent_version"`
}

// OrgEnrollResponse is the identity minted for a token-enrolled agent.
type OrgEnrollResponse struct {
	AgentID    string `json:"agent_id"`
	AgentToken string `json:"agent_token"`
	OrgID      string `json:"org_id"`
	OrgName    string `json:"org_name"`
}

// LegacyRegisterRequest is the pre-token registration flow, gated by a
// shared secret. hwid is optional here; the other flows require it.
type LegacyRegisterRequest struct {
	RegistrationKey string `json:"registration_key"`
	HWID            string `json:"hwid,omitempty"`
	Hostname        string `json:"hostname"`
	OSType          string `json:"os_type"`
	OSVersion       string `json:"os_version"`
	AgentVersion    string `json:"agent_version"`
}

// HeartbeatRequest carries current resource metrics plus the policy version
// the agent is actually running, which the server echoes into the endpoint
// row and compares against the org's current policy.
type HeartbeatRequest struct {
	CPUPercent    float64  `json:"cpu_percent"`
	MemoryPercent float64  `json:"memory_percent"`
	DiskPercent   *float64 `json:"disk_percent,omitempty"`
	ProcessCount  *int     `json:"process_count,omitempty"`
	IncidentCount int      `json:"incident_count"`
	AgentVersion  string   `json:"agent_version,omitempty"`
	PolicyVersion int      `json:"policy_version"`
}

// Command is a tagged variant: Type selects which of the optional fields
// are meaningful. Agents must treat delivery as at-least-once and handle
// re-delivery idempotently.
type Command struct {
	Type     string `json:"type"`
	Version  int    `json:"version,omitempty"`  // update_policy
	Service  string `json:"service,omitempty"`  // restart_service
	URL      string `json:"url,omitempty"`      // update_agent
	Checksum string `json:"checksum,omitempty"` // update_agent
}

// HeartbeatResponse tells the agent whether a newer policy exists and
// delivers at most one queued command.
type HeartbeatResponse struct {
	Status          string    `json:"status"`
	ServerTime      time.Time `json:"server_time"`
	HasPolicyUpdate bool      `json:"has_policy_update"`
	PolicyVersion   int       `json:"policy_version"`
	Command         *Command  `json:"command,omitempty"`
}

// BaselineSyncRequest uploads the agent's behavioral model. One baseline
// per endpoint; identical re-sends are idempotent.
type BaselineSyncRequest struct {
	BaselineHash   string    `json:"baseline_hash"`
	MeanValues     []float64 `json:"mean_values"`
	VarianceValues []float64 `json:"variance_values,omitempty"`
	SampleCount    int       `json:"sample_count"`
	Version        int       `json:"version"`
}

// BaselineSyncResponse acknowledges the stored baseline version.
type BaselineSyncResponse struct {
	Status  string `json:"status"`
	Version int    `json:"version"`
}

// IncidentReport is one detection in an incident sync batch. The id is
// chosen by the agent and acts as the idempotency key; created_at is Unix
// seconds (the one agent-supplied timestamp on the wire).
type IncidentReport struct {
	ID              string   `json:"id"`
	Severity        string   `json:"severity"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	MitreTechniques []string `json:"mitre_techniques,omitempty"`
	ThreatClass     string   `json:"threat_class,omitempty"`
	Confidence      float64  `json:"confidence,omitempty"`
	CreatedAt       int64    `json:"created_at,omitempty"`
}

// IncidentSyncRequest is a batch of incident reports.
type IncidentSyncRequest struct {
	Incidents []IncidentReport `json:"incidents"`
}

// IncidentSyncResponse reports how many items were accepted. Failures are
// logged server-side; the batch never fails as a whole.
type IncidentSyncResponse struct {
	SyncedCount int       `json:"synced_count"`
	ServerTime  time.Time `json:"server_time"`
}

// PolicyResponse is the current policy body served to agents. Fetching it
// acknowledges the version: the server records it on the endpoint row.
type PolicyResponse struct {
	PolicyID string          `json:"policy_id"`
	Name     string          `json:"name"`
	Version  int             `json:"version"`
	Config   json.RawMessage `json:"config"`
}

// ErrorResponse is the wire shape of every error the API returns.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}
