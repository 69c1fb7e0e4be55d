package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

const userColumns = `id, org_id, email, password_hash, name, role, is_active, last_login, created_at, updated_at`

// CreateUser inserts a new user. Email uniqueness is global and
// case-insensitive; a duplicate surfaces as a unique constraint error.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return insertUser(ctx, s.db, u)
}

func insertUser(ctx context.Context, q dbtx, u *models.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, org_id, email, password_hash, name, role, is_active, last_login, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.OrgID, u.Email, u.PasswordHash, u.Name, string(u.Role),
		boolToInt(u.IsActive), nullableTimeUnix(u.LastLogin),
		u.CreatedAt.Unix(), u.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves an active user by case-insensitive email.
// Returns (nil, nil) when no active user matches.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?) AND is_active = 1`, email)
	return scanUser(row)
}

// GetUser retrieves a user by id regardless of active flag.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ListUsers returns all users of one organization, newest first.
func (s *Store) ListUsers(ctx context.Context, orgID string) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE org_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// TouchLastLogin records a successful authentication.
func (s *Store) TouchLastLogin(ctx context.Context, userID string) error {
	now := time.Now().UTC().Unix()
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`, now, now, userID)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func scanUser(s scanner) (*models.User, error) {
	var u models.User
	var role string
	var isActive int
	var lastLogin sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &u.Name, &role,
		&isActive, &lastLogin, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.Role = models.Role(role)
	u.IsActive = isActive != 0
	u.LastLogin = timePtr(lastLogin)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &u, nil
}
