package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/tenancy"
)

const orgColumns = `id, name, license_key, max_agents, tier, created_at, updated_at`

// CreateOrganization inserts a new organization.
func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	return insertOrganization(ctx, s.db, org)
}

func insertOrganization(ctx context.Context, q dbtx, org *models.Organization) error {
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	if org.Tier == "" {
		org.Tier = tenancy.DefaultTier
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO organizations (id, name, license_key, max_agents, tier, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		org.ID, org.Name, org.LicenseKey, org.MaxAgents, string(org.Tier),
		org.CreatedAt.Unix(), org.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// GetOrganization retrieves an organization by id. Returns (nil, nil) when
// no row matches.
func (s *Store) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = ?`, id)
	return scanOrganization(row)
}

// GetOrganizationByName retrieves an organization by exact name. Used by the
// legacy registration flow to resolve the built-in default org.
func (s *Store) GetOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE name = ?`, name)
	return scanOrganization(row)
}

// RenameOrganization updates the organization name.
func (s *Store) RenameOrganization(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("rename organization: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("organization %q not found", id)
	}
	return nil
}

func scanOrganization(s scanner) (*models.Organization, error) {
	var org models.Organization
	var tier string
	var createdAt, updatedAt int64

	err := s.Scan(&org.ID, &org.Name, &org.LicenseKey, &org.MaxAgents, &tier, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan organization: %w", err)
	}

	parsed, err := tenancy.Parse(tier)
	if err != nil {
		// Tolerate unknown stored tiers rather than failing reads.
		parsed = tenancy.Tier(tier)
	}
	org.Tier = parsed
	org.CreatedAt = time.Unix(createdAt, 0).UTC()
	org.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &org, nil
}
