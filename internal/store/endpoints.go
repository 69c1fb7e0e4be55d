package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

const endpointColumns = `id, org_id, hostname, os_type, os_version, agent_version, ip_address,
	hwid, token_hash, last_heartbeat, status, baseline_hash, baseline_version, policy_version,
	created_at, updated_at`

// CreateEndpoint inserts a new endpoint. A freshly enrolled agent is online.
func (s *Store) CreateEndpoint(ctx context.Context, e *models.Endpoint) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = models.StatusOnline
	}
	if e.LastHeartbeat == nil {
		e.LastHeartbeat = &now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO endpoints (id, org_id, hostname, os_type, os_version, agent_version, ip_address,
			hwid, token_hash, last_heartbeat, status, baseline_hash, baseline_version, policy_version,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrgID, e.Hostname, e.OSType, e.OSVersion, e.AgentVersion, nullableString(e.IPAddress),
		e.HWID, e.TokenHash, nullableTimeUnix(e.LastHeartbeat), string(e.Status),
		e.BaselineHash, e.BaselineVersion, e.PolicyVersion,
		e.CreatedAt.Unix(), e.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create endpoint: %w", err)
	}
	return nil
}

// GetEndpoint retrieves an endpoint by id. Returns (nil, nil) when missing.
func (s *Store) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id)
	return scanEndpoint(row)
}

// GetEndpointByHWID retrieves an endpoint by its (org, hardware id) identity.
func (s *Store) GetEndpointByHWID(ctx context.Context, orgID, hwid string) (*models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE org_id = ? AND hwid = ?`, orgID, hwid)
	return scanEndpoint(row)
}

// GetEndpointByTokenHash resolves the agent-auth bearer token hash.
func (s *Store) GetEndpointByTokenHash(ctx context.Context, tokenHash string) (*models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE token_hash = ?`, tokenHash)
	return scanEndpoint(row)
}

// ListEndpoints returns all endpoints of one organization, newest first.
func (s *Store) ListEndpoints(ctx context.Context, orgID string) ([]*models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE org_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

// CountEndpoints returns the org's device count for quota checks.
func (s *Store) CountEndpoints(ctx context.Context, orgID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM endpoints WHERE org_id = ?`, orgID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count endpoints: %w", err)
	}
	return count, nil
}

// CountEndpointsByStatus returns total and online counts for one org.
func (s *Store) CountEndpointsByStatus(ctx context.Context, orgID string) (total, online int, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'online' THEN 1 ELSE 0 END), 0)
		FROM endpoints WHERE org_id = ?`, orgID)
	if err := row.Scan(&total, &online); err != nil {
		return 0, 0, fmt.Errorf("count endpoints by status: %w", err)
	}
	return total, online, nil
}

// CountFleetByStatus returns total and online counts across every org,
// for the process-wide gauges.
func (s *Store) CountFleetByStatus(ctx context.Context) (total, online int, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'online' THEN 1 ELSE 0 END), 0)
		FROM endpoints`)
	if err := row.Scan(&total, &online); err != nil {
		return 0, 0, fmt.Errorf("count fleet by status: %w", err)
	}
	return total, online, nil
}

// RotateEndpointToken re-keys an existing endpoint during re-enrollment:
// new token hash, refreshed host facts, liveness bumped. The previous token
// stops resolving immediately.
func (s *Store) RotateEndpointToken(ctx context.Context, id, tokenHash, hostname, osType, osVersion, agentVersion string) error {
	now := time.Now().UTC().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE endpoints SET
			token_hash = ?, hostname = ?, os_type = ?, os_version = ?, agent_version = ?,
			status = 'online', last_heartbeat = ?, updated_at = ?
		WHERE id = ?`,
		tokenHash, hostname, osType, osVersion, agentVersion, now, now, id)
	if err != nil {
		return fmt.Errorf("rotate endpoint token: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("endpoint %q not found", id)
	}
	return nil
}

// RecordHeartbeat updates the endpoint row for one heartbeat in a single
// statement: liveness, reported agent version, the version the agent says
// it runs, and the source IP unless empty.
func (s *Store) RecordHeartbeat(ctx context.Context, id, ip, agentVersion string, policyVersion int) error {
	now := time.Now().UTC().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE endpoints SET
			last_heartbeat = ?, status = 'online',
			ip_address = COALESCE(NULLIF(?, ''), ip_address),
			agent_version = ?, policy_version = ?, updated_at = ?
		WHERE id = ?`,
		now, ip, agentVersion, policyVersion, now, id)
	if err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("endpoint %q not found", id)
	}
	return nil
}

// SetEndpointPolicyVersion records the policy version an agent acknowledged
// by fetching the policy body.
func (s *Store) SetEndpointPolicyVersion(ctx context.Context, id string, version int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE endpoints SET policy_version = ?, updated_at = ? WHERE id = ?`,
		version, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("set endpoint policy version: %w", err)
	}
	return nil
}

// SetEndpointBaseline keeps the endpoint row in sync after a baseline sync.
func (s *Store) SetEndpointBaseline(ctx context.Context, id, baselineHash string, baselineVersion int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE endpoints SET baseline_hash = ?, baseline_version = ?, updated_at = ? WHERE id = ?`,
		baselineHash, baselineVersion, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("set endpoint baseline: %w", err)
	}
	return nil
}

// DeleteEndpoint removes an endpoint and, through foreign keys, its
// baseline, incidents, samples, and queued commands. The org_id filter is
// part of the predicate: a cross-tenant id deletes nothing.
func (s *Store) DeleteEndpoint(ctx context.Context, id, orgID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM endpoints WHERE id = ? AND org_id = ?`, id, orgID)
	if err != nil {
		return false, fmt.Errorf("delete endpoint: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// MarkStaleEndpointsOffline flips endpoints without a recent heartbeat to
// offline. Returns the number of rows changed.
func (s *Store) MarkStaleEndpointsOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE endpoints SET status = 'offline', updated_at = ?
		WHERE status = 'online' AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		time.Now().UTC().Unix(), cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("mark stale endpoints offline: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func scanEndpoint(s scanner) (*models.Endpoint, error) {
	var e models.Endpoint
	var ip sql.NullString
	var status string
	var lastHeartbeat sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(&e.ID, &e.OrgID, &e.Hostname, &e.OSType, &e.OSVersion, &e.AgentVersion, &ip,
		&e.HWID, &e.TokenHash, &lastHeartbeat, &status, &e.BaselineHash, &e.BaselineVersion,
		&e.PolicyVersion, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan endpoint: %w", err)
	}

	e.IPAddress = ip.String
	e.Status = models.EndpointStatus(status)
	e.LastHeartbeat = timePtr(lastHeartbeat)
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &e, nil
}

func scanEndpoints(rows *sql.Rows) ([]*models.Endpoint, error) {
	var endpoints []*models.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}
