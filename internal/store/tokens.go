package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

const orgTokenColumns = `id, org_id, token, name, expires_at, max_uses, uses_count, is_active, created_by, created_at, revoked_at`

// CreateOrgToken inserts a new enrollment token.
func (s *Store) CreateOrgToken(ctx context.Context, t *models.OrganizationToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organization_tokens (id, org_id, token, name, expires_at, max_uses, uses_count, is_active, created_by, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrgID, t.Token, t.Name, nullableTimeUnix(t.ExpiresAt), nullableInt(t.MaxUses),
		t.UsesCount, boolToInt(t.IsActive), t.CreatedBy, t.CreatedAt.Unix(), nullableTimeUnix(t.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("create org token: %w", err)
	}
	return nil
}

// GetOrgToken retrieves a token by id. Returns (nil, nil) when missing.
func (s *Store) GetOrgToken(ctx context.Context, id string) (*models.OrganizationToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgTokenColumns+` FROM organization_tokens WHERE id = ?`, id)
	return scanOrgToken(row)
}

// ListOrgTokens returns all tokens of one organization, newest first.
func (s *Store) ListOrgTokens(ctx context.Context, orgID string) ([]*models.OrganizationToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orgTokenColumns+` FROM organization_tokens WHERE org_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list org tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.OrganizationToken
	for rows.Next() {
		t, err := scanOrgToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// TryUseToken atomically consumes one use of an enrollment token. The single
// conditional UPDATE is the authoritative admission check: it increments
// uses_count only for an active, unexpired token under its use cap, so a
// token with max_uses = N admits at most N enrollments regardless of
// interleaving. Returns the token row on success, (nil, nil) on refusal.
func (s *Store) TryUseToken(ctx context.Context, value string, now time.Time) (*models.OrganizationToken, error) {
	res, err := s.db.ExecContext(ctx, tryUseTokenSQL, value, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("try use token: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgTokenColumns+` FROM organization_tokens WHERE token = ?`, value)
	return scanOrgToken(row)
}

const tryUseTokenSQL = `
	UPDATE organization_tokens SET uses_count = uses_count + 1
	WHERE token = ?
	  AND is_active = 1
	  AND (expires_at IS NULL OR expires_at > ?)
	  AND (max_uses IS NULL OR uses_count < max_uses)`

// RevokeOrgToken deactivates a token. Revocation is terminal: the first
// revocation stamps revoked_at, later calls change nothing.
func (s *Store) RevokeOrgToken(ctx context.Context, id, orgID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE organization_tokens SET is_active = 0, revoked_at = ?
		WHERE id = ? AND org_id = ? AND is_active = 1`,
		time.Now().UTC().Unix(), id, orgID)
	if err != nil {
		return false, fmt.Errorf("revoke org token: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func scanOrgToken(s scanner) (*models.OrganizationToken, error) {
	var t models.OrganizationToken
	var expiresAt, maxUses, revokedAt sql.NullInt64
	var isActive int
	var createdAt int64

	err := s.Scan(&t.ID, &t.OrgID, &t.Token, &t.Name, &expiresAt, &maxUses,
		&t.UsesCount, &isActive, &t.CreatedBy, &createdAt, &revokedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan org token: %w", err)
	}

	t.ExpiresAt = timePtr(expiresAt)
	t.MaxUses = intPtr(maxUses)
	t.IsActive = isActive != 0
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.RevokedAt = timePtr(revokedAt)
	return &t, nil
}
