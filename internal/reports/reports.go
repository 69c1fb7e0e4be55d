// Package reports builds the per-organization read models served under
// /api/v1/reports and renders them as JSON, CSV, or PDF.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/store"
)

// Format selects the export encoding of a report.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query-string value to a Format. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// SeverityCounts buckets open incidents by severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// ExecutiveReport is the fleet-health summary for one organization.
type ExecutiveReport struct {
	OrgID           string         `json:"org_id"`
	OrgName         string         `json:"org_name"`
	GeneratedAt     time.Time      `json:"generated_at"`
	TotalEndpoints  int            `json:"total_endpoints"`
	OnlineEndpoints int            `json:"online_endpoints"`
	OpenIncidents   SeverityCounts `json:"open_incidents"`
	SecurityScore   float64        `json:"security_score"`
}

// ControlCheck is one line of the compliance report.
type ControlCheck struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// ComplianceReport lists control checks with their verdicts. The checks are
// a fixed catalog; the contract is the shape, not an assessment algorithm.
type ComplianceReport struct {
	OrgID         string         `json:"org_id"`
	OrgName       string         `json:"org_name"`
	GeneratedAt   time.Time      `json:"generated_at"`
	OverallStatus string         `json:"overall_status"`
	Checks        []ControlCheck `json:"checks"`
}

var complianceCatalog = []ControlCheck{
	{ID: "SEC-001", Name: "Realtime protection", Description: "Behavioral detection engine active on enrolled endpoints", Status: "compliant"},
	{ID: "SEC-002", Name: "Policy enforcement", Description: "Endpoints run an assigned protection policy", Status: "compliant"},
	{ID: "SEC-003", Name: "Baseline coverage", Description: "Behavioral baselines established for monitored hosts", Status: "compliant"},
	{ID: "SEC-004", Name: "Incident response", Description: "Detections are reported to the control plane within sync interval", Status: "compliant"},
	{ID: "SEC-005", Name: "Agent currency", Description: "Agents report a supported version", Status: "compliant"},
	{ID: "SEC-006", Name: "Access control", Description: "Administrative actions restricted to admin role", Status: "compliant"},
}

// SecurityScore computes the fleet score from open-incident counts.
// Criticals weigh 10, highs 5, mediums 2, normalized per endpoint and
// clamped to [0, 100]. An empty fleet scores 100.
func SecurityScore(totalEndpoints, critical, high, medium int) float64 {
	if totalEndpoints == 0 {
		return 100
	}
	score := 100 - float64(10*critical+5*high+2*medium)/float64(totalEndpoints)
	if score < 0 {
		return 0
	}
	return score
}

// Builder assembles reports from persisted state. It holds no caches; every
// report reads current rows.
type Builder struct {
	store *store.Store
	now   func() time.Time
}

// NewBuilder creates a report builder backed by the given store.
func NewBuilder(st *store.Store) *Builder {
	return &Builder{store: st, now: time.Now}
}

// Executive builds the fleet-health summary for org.
func (b *Builder) Executive(ctx context.Context, org *models.Organization) (*ExecutiveReport, error) {
	total, online, err := b.store.CountEndpointsByStatus(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("count endpoints: %w", err)
	}
	bySeverity, err := b.store.CountOpenIncidentsBySeverity(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("count open incidents: %w", err)
	}

	counts := SeverityCounts{
		Critical: bySeverity[models.SeverityCritical],
		High:     bySeverity[models.SeverityHigh],
		Medium:   bySeverity[models.SeverityMedium],
		Low:      bySeverity[models.SeverityLow],
	}
	return &ExecutiveReport{
		OrgID:           org.ID,
		OrgName:         org.Name,
		GeneratedAt:     b.now().UTC(),
		TotalEndpoints:  total,
		OnlineEndpoints: online,
		OpenIncidents:   counts,
		SecurityScore:   SecurityScore(total, counts.Critical, counts.High, counts.Medium),
	}, nil
}

// Compliance builds the control-check report for org.
func (b *Builder) Compliance(org *models.Organization) *ComplianceReport {
	checks := make([]ControlCheck, len(complianceCatalog))
	copy(checks, complianceCatalog)
	return &ComplianceReport{
		OrgID:         org.ID,
		OrgName:       org.Name,
		GeneratedAt:   b.now().UTC(),
		OverallStatus: "compliant",
		Checks:        checks,
	}
}
