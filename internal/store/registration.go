package store

import (
	"context"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

// RegisterAccount creates an organization and its first admin user in one
// transaction, so a duplicate email never leaves an orphaned org behind.
func (s *Store) RegisterAccount(ctx context.Context, org *models.Organization, user *models.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}
	defer tx.Rollback()

	if err := insertOrganization(ctx, tx, org); err != nil {
		return err
	}
	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// RegisterPersonal is the register branch of personal enrollment: personal
// org, admin user, and first endpoint in one transaction.
func (s *Store) RegisterPersonal(ctx context.Context, org *models.Organization, user *models.User, seed EndpointSeed) (*models.Endpoint, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin personal registration: %w", err)
	}
	defer tx.Rollback()

	if err := insertOrganization(ctx, tx, org); err != nil {
		return nil, err
	}
	if err := insertUser(ctx, tx, user); err != nil {
		return nil, err
	}
	endpoint, _, err := admitEndpoint(ctx, tx, org.ID, seed, org.MaxDevices(), now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit personal registration: %w", err)
	}
	return endpoint, nil
}
