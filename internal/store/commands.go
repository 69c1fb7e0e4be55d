package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

const commandColumns = `id, endpoint_id, kind, payload, status, created_by, created_at, sent_at`

// EnqueueCommand queues an instruction for one endpoint. It is delivered
// through a later heartbeat response.
func (s *Store) EnqueueCommand(ctx context.Context, cmd *models.AgentCommand) error {
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}
	if cmd.Status == "" {
		cmd.Status = models.CommandPending
	}

	var payload any
	if len(cmd.Payload) > 0 {
		payload = string(cmd.Payload)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_commands (id, endpoint_id, kind, payload, status, created_by, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID, cmd.EndpointID, string(cmd.Kind), payload, string(cmd.Status),
		cmd.CreatedBy, cmd.CreatedAt.Unix(), nullableTimeUnix(cmd.SentAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue command: %w", err)
	}
	return nil
}

// PopPendingCommand atomically claims the oldest pending command for an
// endpoint and marks it sent. Concurrent heartbeats claim distinct rows.
// Returns (nil, nil) when the queue is empty.
func (s *Store) PopPendingCommand(ctx context.Context, endpointID string) (*models.AgentCommand, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE agent_commands SET status = 'sent', sent_at = ?
		WHERE id = (
			SELECT id FROM agent_commands
			WHERE endpoint_id = ? AND status = 'pending'
			ORDER BY created_at, id LIMIT 1
		)
		RETURNING `+commandColumns,
		time.Now().UTC().Unix(), endpointID)
	return scanCommand(row)
}

// ListCommands returns the command history of one endpoint, newest first.
func (s *Store) ListCommands(ctx context.Context, endpointID string, limit int) ([]*models.AgentCommand, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commandColumns+` FROM agent_commands
		WHERE endpoint_id = ?
		ORDER BY created_at DESC, id LIMIT ?`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var commands []*models.AgentCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}

// CountPendingCommands reports queue depth for one endpoint.
func (s *Store) CountPendingCommands(ctx context.Context, endpointID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM agent_commands
		WHERE endpoint_id = ? AND status = 'pending'`, endpointID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending commands: %w", err)
	}
	return n, nil
}

func scanCommand(sc scanner) (*models.AgentCommand, error) {
	var cmd models.AgentCommand
	var payload sql.NullString
	var createdAt int64
	var sentAt sql.NullInt64

	err := sc.Scan(&cmd.ID, &cmd.EndpointID, &cmd.Kind, &payload, &cmd.Status,
		&cmd.CreatedBy, &createdAt, &sentAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan command: %w", err)
	}

	if payload.Valid {
		cmd.Payload = json.RawMessage(payload.String)
	}
	cmd.CreatedAt = time.Unix(createdAt, 0).UTC()
	cmd.SentAt = timePtr(sentAt)
	return &cmd, nil
}
