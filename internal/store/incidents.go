package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

const incidentColumns = `id, endpoint_id, severity, title, description, mitre_techniques,
	threat_class, confidence, status, assigned_to, created_at, updated_at, resolved_at`

// IncidentFilter narrows ListIncidents. Zero-value fields are ignored.
type IncidentFilter struct {
	Status     models.IncidentStatus
	Severity   models.Severity
	EndpointID string
	Limit      int
}

// UpsertIncident inserts an incident or, when the agent re-sends an id it
// already reported, refreshes the detection fields. Triage state (status,
// assigned_to, resolved_at) is never touched by a re-send. The conflict
// guard keeps an id owned by another endpoint from being captured; the
// return value reports whether a row was written.
func (s *Store) UpsertIncident(ctx context.Context, inc *models.Incident) (bool, error) {
	now := time.Now().UTC()
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = now
	}
	inc.UpdatedAt = now
	if inc.Severity == "" {
		inc.Severity = models.SeverityLow
	}
	if inc.Status == "" {
		inc.Status = models.IncidentOpen
	}

	techniques := []byte("[]")
	if inc.MitreTechniques != nil {
		var err error
		techniques, err = json.Marshal(inc.MitreTechniques)
		if err != nil {
			return false, fmt.Errorf("encode mitre techniques: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity = excluded.severity,
			title = excluded.title,
			description = excluded.description,
			mitre_techniques = excluded.mitre_techniques,
			threat_class = excluded.threat_class,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
		WHERE incidents.endpoint_id = excluded.endpoint_id`,
		inc.ID, inc.EndpointID, string(inc.Severity), inc.Title, inc.Description,
		string(techniques), inc.ThreatClass, inc.Confidence, string(inc.Status),
		nullableString(inc.AssignedTo), inc.CreatedAt.Unix(), inc.UpdatedAt.Unix(),
		nullableTimeUnix(inc.ResolvedAt),
	)
	if err != nil {
		return false, fmt.Errorf("upsert incident: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert incident: %w", err)
	}
	return affected > 0, nil
}

// GetIncident retrieves an incident by id without tenant scoping.
func (s *Store) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	return scanIncident(row)
}

// GetIncidentScoped retrieves an incident together with the org that owns
// its endpoint, so callers can decide between not-found and cross-tenant.
func (s *Store) GetIncidentScoped(ctx context.Context, id string) (*models.Incident, string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT e.org_id, i.id, i.endpoint_id, i.severity, i.title, i.description,
			i.mitre_techniques, i.threat_class, i.confidence, i.status, i.assigned_to,
			i.created_at, i.updated_at, i.resolved_at
		FROM incidents i JOIN endpoints e ON e.id = i.endpoint_id
		WHERE i.id = ?`, id)

	var orgID string
	inc, err := scanIncidentInto(row, &orgID)
	if err != nil {
		return nil, "", err
	}
	if inc == nil {
		return nil, "", nil
	}
	return inc, orgID, nil
}

// ListIncidents returns the incidents of one org, newest first.
func (s *Store) ListIncidents(ctx context.Context, orgID string, f IncidentFilter) ([]*models.Incident, error) {
	query := `
		SELECT i.id, i.endpoint_id, i.severity, i.title, i.description,
			i.mitre_techniques, i.threat_class, i.confidence, i.status, i.assigned_to,
			i.created_at, i.updated_at, i.resolved_at
		FROM incidents i JOIN endpoints e ON e.id = i.endpoint_id
		WHERE e.org_id = ?`
	args := []any{orgID}

	if f.Status != "" {
		query += ` AND i.status = ?`
		args = append(args, string(f.Status))
	}
	if f.Severity != "" {
		query += ` AND i.severity = ?`
		args = append(args, string(f.Severity))
	}
	if f.EndpointID != "" {
		query += ` AND i.endpoint_id = ?`
		args = append(args, f.EndpointID)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` ORDER BY i.created_at DESC, i.id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*models.Incident
	for rows.Next() {
		inc, err := scanIncidentInto(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// UpdateIncidentStatus transitions an incident's triage state. A nil
// assignedTo leaves the assignment unchanged; an empty string clears it.
// resolved_at is set on transition to resolved and cleared otherwise.
// Returns (nil, nil) when the incident does not exist.
func (s *Store) UpdateIncidentStatus(ctx context.Context, id string, status models.IncidentStatus, assignedTo *string) (*models.Incident, error) {
	now := time.Now().UTC()
	var resolvedAt any
	if status == models.IncidentResolved {
		resolvedAt = now.Unix()
	}

	var res sql.Result
	var err error
	if assignedTo != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE incidents SET status = ?, assigned_to = ?, resolved_at = ?, updated_at = ?
			WHERE id = ?`,
			string(status), nullableString(*assignedTo), resolvedAt, now.Unix(), id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE incidents SET status = ?, resolved_at = ?, updated_at = ?
			WHERE id = ?`,
			string(status), resolvedAt, now.Unix(), id)
	}
	if err != nil {
		return nil, fmt.Errorf("update incident status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update incident status: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetIncident(ctx, id)
}

// CountOpenIncidentsBySeverity tallies an org's open incidents for scoring.
func (s *Store) CountOpenIncidentsBySeverity(ctx context.Context, orgID string) (map[models.Severity]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.severity, COUNT(*)
		FROM incidents i JOIN endpoints e ON e.id = i.endpoint_id
		WHERE e.org_id = ? AND i.status = 'open'
		GROUP BY i.severity`, orgID)
	if err != nil {
		return nil, fmt.Errorf("count open incidents: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Severity]int)
	for rows.Next() {
		var severity string
		var n int
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, fmt.Errorf("scan incident count: %w", err)
		}
		counts[models.Severity(severity)] = n
	}
	return counts, rows.Err()
}

// CountIncidentsByStatus tallies an org's incidents across all states.
func (s *Store) CountIncidentsByStatus(ctx context.Context, orgID string) (map[models.IncidentStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.status, COUNT(*)
		FROM incidents i JOIN endpoints e ON e.id = i.endpoint_id
		WHERE e.org_id = ?
		GROUP BY i.status`, orgID)
	if err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.IncidentStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan incident count: %w", err)
		}
		counts[models.IncidentStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanIncident(sc scanner) (*models.Incident, error) {
	return scanIncidentInto(sc)
}

// scanIncidentInto scans leading extra columns (if any) followed by the
// incident columns in incidentColumns order.
func scanIncidentInto(sc scanner, extra ...any) (*models.Incident, error) {
	var inc models.Incident
	var techniques string
	var assignedTo sql.NullString
	var createdAt, updatedAt int64
	var resolvedAt sql.NullInt64

	dest := append(extra,
		&inc.ID, &inc.EndpointID, &inc.Severity, &inc.Title, &inc.Description,
		&techniques, &inc.ThreatClass, &inc.Confidence, &inc.Status, &assignedTo,
		&createdAt, &updatedAt, &resolvedAt,
	)
	if err := sc.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}

	if err := json.Unmarshal([]byte(techniques), &inc.MitreTechniques); err != nil {
		return nil, fmt.Errorf("decode mitre techniques: %w", err)
	}
	if assignedTo.Valid {
		inc.AssignedTo = assignedTo.String
	}
	inc.CreatedAt = time.Unix(createdAt, 0).UTC()
	inc.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	inc.ResolvedAt = timePtr(resolvedAt)
	return &inc, nil
}
