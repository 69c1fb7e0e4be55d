// Package models defines the persistent entities of the control plane.
// Every entity except Organization carries a direct or transitive org_id;
// queries on behalf of a principal always filter on it.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/tenancy"
)

// Role is a user's permission level within their organization.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleAnalyst:
		return RoleAnalyst, nil
	case RoleViewer:
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Organization is the tenancy unit. Never deleted in-band.
type Organization struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	LicenseKey string       `json:"license_key,omitempty"`
	MaxAgents  int          `json:"max_agents"`
	Tier       tenancy.Tier `json:"tier"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// MaxDevices resolves the org's device quota from its tier.
func (o *Organization) MaxDevices() int {
	return tenancy.MaxDevices(o.Tier, o.MaxAgents)
}

// User is a human principal. Deactivated, never hard-deleted in the hot path.
type User struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name,omitempty"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// EndpointStatus is the server's view of agent liveness.
type EndpointStatus string

const (
	StatusOnline  EndpointStatus = "online"
	StatusOffline EndpointStatus = "offline"
)

// Endpoint is an enrolled agent. (org_id, hwid) is unique; re-enrollment
// with the same hwid rotates the bearer token instead of inserting.
type Endpoint struct {
	ID              string         `json:"id"`
	OrgID           string         `json:"org_id"`
	Hostname        string         `json:"hostname"`
	OSType          string         `json:"os_type"`
	OSVersion       string         `json:"os_version"`
	AgentVersion    string         `json:"agent_version"`
	IPAddress       string         `json:"ip_address,omitempty"`
	HWID            string         `json:"hwid"`
	TokenHash       string         `json:"-"`
	LastHeartbeat   *time.Time     `json:"last_heartbeat,omitempty"`
	Status          EndpointStatus `json:"status"`
	BaselineHash    string         `json:"baseline_hash,omitempty"`
	BaselineVersion int            `json:"baseline_version"`
	PolicyVersion   int            `json:"policy_version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// OrganizationToken is an org-scoped enrollment secret. The full value is
// returned once at creation; list views are redacted.
type OrganizationToken struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	Token     string     `json:"-"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	MaxUses   *int       `json:"max_uses,omitempty"`
	UsesCount int        `json:"uses_count"`
	IsActive  bool       `json:"is_active"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Policy is a versioned detection configuration. Multiple rows per org may
// be active; the current policy is the highest active version.
type Policy struct {
	ID          string          `json:"id"`
	OrgID       string          `json:"org_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Config      json.RawMessage `json:"config"`
	Version     int             `json:"version"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Baseline is the per-endpoint behavioral model. One row per endpoint,
// upserted on every sync.
type Baseline struct {
	ID             string    `json:"id"`
	EndpointID     string    `json:"endpoint_id"`
	MeanValues     []float64 `json:"mean_values"`
	VarianceValues []float64 `json:"variance_values,omitempty"`
	SampleCount    int       `json:"sample_count"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Severity buckets an incident for triage and scoring.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity validates a severity string.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// IncidentStatus is the triage state of an incident.
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentTriaged  IncidentStatus = "triaged"
	IncidentResolved IncidentStatus = "resolved"
)

// ParseIncidentStatus validates a status string.
func ParseIncidentStatus(s string) (IncidentStatus, error) {
	switch IncidentStatus(strings.ToLower(strings.TrimSpace(s))) {
	case IncidentOpen:
		return IncidentOpen, nil
	case IncidentTriaged:
		return IncidentTriaged, nil
	case IncidentResolved:
		return IncidentResolved, nil
	default:
		return "", fmt.Errorf("unknown incident status %q", s)
	}
}

// Incident is a detection event. The id is chosen by the agent and acts as
// the idempotency key: re-sending the same id updates, never duplicates.
type Incident struct {
	ID              string         `json:"id"`
	EndpointID      string         `json:"endpoint_id"`
	Severity        Severity       `json:"severity"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	MitreTechniques []string       `json:"mitre_techniques,omitempty"`
	ThreatClass     string         `json:"threat_class,omitempty"`
	Confidence      float64        `json:"confidence"`
	Status          IncidentStatus `json:"status"`
	AssignedTo      string         `json:"assigned_to,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
}

// HeartbeatSample is one point in the per-endpoint resource time series.
type HeartbeatSample struct {
	ID            int64     `json:"id"`
	EndpointID    string    `json:"endpoint_id"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   *float64  `json:"disk_percent,omitempty"`
	IncidentCount int       `json:"incident_count"`
	ProcessCount  *int      `json:"process_count,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// CommandKind tags an agent command variant.
type CommandKind string

const (
	CommandUpdatePolicy       CommandKind = "update_policy"
	CommandCollectDiagnostics CommandKind = "collect_diagnostics"
	CommandRestartService     CommandKind = "restart_service"
	CommandUpdateAgent        CommandKind = "update_agent"
)

// ParseCommandKind validates a command kind string.
func ParseCommandKind(s string) (CommandKind, error) {
	switch CommandKind(strings.ToLower(strings.TrimSpace(s))) {
	case CommandUpdatePolicy:
		return CommandUpdatePolicy, nil
	case CommandCollectDiagnostics:
		return CommandCollectDiagnostics, nil
	case CommandRestartService:
		return CommandRestartService, nil
	case CommandUpdateAgent:
		return CommandUpdateAgent, nil
	default:
		return "", fmt.Errorf("unknown command kind %q", s)
	}
}

// CommandStatus tracks delivery. A popped command is marked sent and
// retained, never deleted.
type CommandStatus string

const (
	CommandPending CommandStatus = "pending"
	CommandSent    CommandStatus = "sent"
)

// AgentCommand is a queued instruction for one endpoint, delivered through
// heartbeat responses one at a time.
type AgentCommand struct {
	ID         string          `json:"id"`
	EndpointID string          `json:"endpoint_id"`
	Kind       CommandKind     `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     CommandStatus   `json:"status"`
	CreatedBy  string          `json:"created_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	SentAt     *time.Time      `json:"sent_at,omitempty"`
}

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID           string          `json:"id"`
	OrgID        string          `json:"org_id"`
	UserID       string          `json:"user_id,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
