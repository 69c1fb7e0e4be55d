package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/tenancy"
)

// ErrTokenRefused marks an enrollment token that failed the atomic
// admission check: unknown, revoked, expired, or exhausted.
var ErrTokenRefused = errors.New("enrollment token refused")

// QuotaError reports a device quota rejection with the counts the client
// message needs.
type QuotaError struct {
	Current int
	Max     int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("device quota exceeded (%d/%d)", e.Current, e.Max)
}

// EndpointSeed carries the agent-supplied facts of an enrollment. The
// caller generates the id and the token hash; the plaintext token never
// reaches the store.
type EndpointSeed struct {
	ID           string
	HWID         string
	Hostname     string
	OSType       string
	OSVersion    string
	AgentVersion string
	IPAddress    string
	TokenHash    string
}

// EnrollmentResult is the endpoint admitted by an enrollment flow.
type EnrollmentResult struct {
	Endpoint *models.Endpoint
	Org      *models.Organization
	Rotated  bool
}

// dbtx is the slice of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnrollWithToken runs the whole org-enrollment admission in one
// transaction: consume a token use, resolve the org, re-check the device
// quota, then rotate or insert the endpoint. A rejection rolls the
// transaction back, so a refused enrollment never burns a token use.
func (s *Store) EnrollWithToken(ctx context.Context, tokenValue string, seed EndpointSeed) (*EnrollmentResult, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enrollment: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tryUseTokenSQL, tokenValue, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("try use token: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrTokenRefused
	}

	token, err := scanOrgToken(tx.QueryRowContext(ctx,
		`SELECT `+orgTokenColumns+` FROM organization_tokens WHERE token = ?`, tokenValue))
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("token row vanished after use")
	}

	org, err := scanOrganization(tx.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = ?`, token.OrgID))
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("organization %q for token not found", token.OrgID)
	}
	if !tenancy.LimitsFor(org.Tier).OrgEnroll {
		// A token minted for a personal-tier org should not exist; refuse
		// rather than admit through the wrong flow.
		return nil, ErrTokenRefused
	}

	endpoint, rotated, err := admitEndpoint(ctx, tx, org.ID, seed, org.MaxDevices(), now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enrollment: %w", err)
	}
	return &EnrollmentResult{Endpoint: endpoint, Org: org, Rotated: rotated}, nil
}

// AdmitEndpoint rotates the endpoint matching (org, hwid) or inserts a new
// one under the device quota, transactionally, so concurrent enrollments
// cannot overshoot maxDevices.
func (s *Store) AdmitEndpoint(ctx context.Context, orgID string, seed EndpointSeed, maxDevices int) (*models.Endpoint, bool, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin admission: %w", err)
	}
	defer tx.Rollback()

	endpoint, rotated, err := admitEndpoint(ctx, tx, orgID, seed, maxDevices, now)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit admission: %w", err)
	}
	return endpoint, rotated, nil
}

// admitEndpoint implements create-or-rotate by (org_id, hwid). The quota
// applies only to the insert path: re-enrolling an existing device always
// succeeds.
func admitEndpoint(ctx context.Context, q dbtx, orgID string, seed EndpointSeed, maxDevices int, now time.Time) (*models.Endpoint, bool, error) {
	existing, err := scanEndpoint(q.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE org_id = ? AND hwid = ?`, orgID, seed.HWID))
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		_, err := q.ExecContext(ctx, `
			UPDATE endpoints SET
				token_hash = ?, hostname = ?, os_type = ?, os_version = ?, agent_version = ?,
				ip_address = COALESCE(NULLIF(?, ''), ip_address),
				status = 'online', last_heartbeat = ?, updated_at = ?
			WHERE id = ?`,
			seed.TokenHash, seed.Hostname, seed.OSType, seed.OSVersion, seed.AgentVersion,
			seed.IPAddress, now.Unix(), now.Unix(), existing.ID)
		if err != nil {
			return nil, false, fmt.Errorf("rotate endpoint: %w", err)
		}

		existing.TokenHash = seed.TokenHash
		existing.Hostname = seed.Hostname
		existing.OSType = seed.OSType
		existing.OSVersion = seed.OSVersion
		existing.AgentVersion = seed.AgentVersion
		if seed.IPAddress != "" {
			existing.IPAddress = seed.IPAddress
		}
		existing.Status = models.StatusOnline
		existing.LastHeartbeat = &now
		existing.UpdatedAt = now
		return existing, true, nil
	}

	var count int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM endpoints WHERE org_id = ?`, orgID).Scan(&count); err != nil {
		return nil, false, fmt.Errorf("count endpoints: %w", err)
	}
	if count >= maxDevices {
		return nil, false, &QuotaError{Current: count, Max: maxDevices}
	}

	endpoint := &models.Endpoint{
		ID:            seed.ID,
		OrgID:         orgID,
		Hostname:      seed.Hostname,
		OSType:        seed.OSType,
		OSVersion:     seed.OSVersion,
		AgentVersion:  seed.AgentVersion,
		IPAddress:     seed.IPAddress,
		HWID:          seed.HWID,
		TokenHash:     seed.TokenHash,
		Status:        models.StatusOnline,
		LastHeartbeat: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO endpoints (id, org_id, hostname, os_type, os_version, agent_version, ip_address,
			hwid, token_hash, last_heartbeat, status, baseline_hash, baseline_version, policy_version,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', 0, 0, ?, ?)`,
		endpoint.ID, endpoint.OrgID, endpoint.Hostname, endpoint.OSType, endpoint.OSVersion,
		endpoint.AgentVersion, nullableString(endpoint.IPAddress), endpoint.HWID, endpoint.TokenHash,
		now.Unix(), string(endpoint.Status), now.Unix(), now.Unix())
	if err != nil {
		return nil, false, fmt.Errorf("insert endpoint: %w", err)
	}
	return endpoint, false, nil
}
