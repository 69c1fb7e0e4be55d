package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

const auditColumns = `id, org_id, user_id, action, resource_type, resource_id, details, ip_address, created_at`

// AppendAudit writes one append-only audit row. IDs are ULIDs so the log
// sorts by insertion order even across processes.
func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details any
	if len(entry.Details) > 0 {
		details = string(entry.Details)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OrgID, nullableString(entry.UserID), entry.Action,
		entry.ResourceType, entry.ResourceID, details, entry.IPAddress,
		entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudit returns the newest audit rows for one org.
func (s *Store) ListAudit(ctx context.Context, orgID string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auditColumns+` FROM audit_log
		WHERE org_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var userID, details sql.NullString
		var createdAt int64

		if err := rows.Scan(&e.ID, &e.OrgID, &userID, &e.Action, &e.ResourceType,
			&e.ResourceID, &details, &e.IPAddress, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if userID.Valid {
			e.UserID = userID.String
		}
		if details.Valid {
			e.Details = []byte(details.String)
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
