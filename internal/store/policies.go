package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

const policyColumns = `id, org_id, name, description, config, version, is_active, created_at, updated_at`

// CreatePolicy inserts a new policy at version 1.
func (s *Store) CreatePolicy(ctx context.Context, p *models.Policy) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Version == 0 {
		p.Version = 1
	}
	config := string(p.Config)
	if config == "" {
		config = "{}"
		p.Config = json.RawMessage(config)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (id, org_id, name, description, config, version, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrgID, p.Name, p.Description, config, p.Version, boolToInt(p.IsActive),
		p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}

// GetPolicy retrieves a policy by id regardless of org; the caller is
// responsible for the tenant post-check.
func (s *Store) GetPolicy(ctx context.Context, id string) (*models.Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE id = ?`, id)
	return scanPolicy(row)
}

// ListPolicies returns all policies of one organization, newest first.
func (s *Store) ListPolicies(ctx context.Context, orgID string) ([]*models.Policy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE org_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// CurrentPolicy resolves the org's current policy: the highest version among
// active rows. Returns (nil, nil) when the org has no active policy.
func (s *Store) CurrentPolicy(ctx context.Context, orgID string) (*models.Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies
		 WHERE org_id = ? AND is_active = 1
		 ORDER BY version DESC LIMIT 1`, orgID)
	return scanPolicy(row)
}

// UpdatePolicy patches a policy and bumps its version in the same statement,
// so every update produces a strictly greater version. Returns the updated
// row, or (nil, nil) when no row matched (id, org).
func (s *Store) UpdatePolicy(ctx context.Context, id, orgID, name, description string, config json.RawMessage, isActive bool) (*models.Policy, error) {
	configText := string(config)
	if configText == "" {
		configText = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE policies SET
			name = ?, description = ?, config = ?, is_active = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND org_id = ?`,
		name, description, configText, boolToInt(isActive),
		time.Now().UTC().Unix(), id, orgID)
	if err != nil {
		return nil, fmt.Errorf("update policy: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, nil
	}
	return s.GetPolicy(ctx, id)
}

func scanPolicy(s scanner) (*models.Policy, error) {
	var p models.Policy
	var config string
	var isActive int
	var createdAt, updatedAt int64

	err := s.Scan(&p.ID, &p.OrgID, &p.Name, &p.Description, &config,
		&p.Version, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan policy: %w", err)
	}

	p.Config = json.RawMessage(config)
	p.IsActive = isActive != 0
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}
