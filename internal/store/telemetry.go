package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/models"
)

// UpsertBaseline writes the one baseline row an endpoint owns: insert on
// first sync, full overwrite afterwards. Identical payloads are idempotent.
func (s *Store) UpsertBaseline(ctx context.Context, b *models.Baseline) error {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	meanJSON, err := json.Marshal(b.MeanValues)
	if err != nil {
		return fmt.Errorf("encode mean values: %w", err)
	}
	var varianceJSON any
	if b.VarianceValues != nil {
		buf, err := json.Marshal(b.VarianceValues)
		if err != nil {
			return fmt.Errorf("encode variance values: %w", err)
		}
		varianceJSON = string(buf)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO baselines (id, endpoint_id, mean_values, variance_values, sample_count, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(endpoint_id) DO UPDATE SET
			mean_values = excluded.mean_values,
			variance_values = excluded.variance_values,
			sample_count = excluded.sample_count,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		b.ID, b.EndpointID, string(meanJSON), varianceJSON, b.SampleCount, b.Version,
		b.CreatedAt.Unix(), b.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

// GetBaseline retrieves the baseline of one endpoint. Returns (nil, nil)
// when the endpoint has not synced yet.
func (s *Store) GetBaseline(ctx context.Context, endpointID string) (*models.Baseline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, endpoint_id, mean_values, variance_values, sample_count, version, created_at, updated_at
		FROM baselines WHERE endpoint_id = ?`, endpointID)

	var b models.Baseline
	var meanJSON string
	var varianceJSON sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&b.ID, &b.EndpointID, &meanJSON, &varianceJSON,
		&b.SampleCount, &b.Version, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan baseline: %w", err)
	}

	if err := json.Unmarshal([]byte(meanJSON), &b.MeanValues); err != nil {
		return nil, fmt.Errorf("decode mean values: %w", err)
	}
	if varianceJSON.Valid {
		if err := json.Unmarshal([]byte(varianceJSON.String), &b.VarianceValues); err != nil {
			return nil, fmt.Errorf("decode variance values: %w", err)
		}
	}
	b.CreatedAt = time.Unix(createdAt, 0).UTC()
	b.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &b, nil
}

// AppendHeartbeatSample appends one point to the endpoint's time series.
func (s *Store) AppendHeartbeatSample(ctx context.Context, sample *models.HeartbeatSample) error {
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeat_samples (endpoint_id, cpu_percent, memory_percent, disk_percent, incident_count, process_count, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sample.EndpointID, sample.CPUPercent, sample.MemoryPercent,
		nullableFloat(sample.DiskPercent), sample.IncidentCount, nullableInt(sample.ProcessCount),
		sample.RecordedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append heartbeat sample: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		sample.ID = id
	}
	return nil
}

// ListHeartbeatSamples returns the most recent samples for one endpoint,
// newest first.
func (s *Store) ListHeartbeatSamples(ctx context.Context, endpointID string, limit int) ([]*models.HeartbeatSample, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endpoint_id, cpu_percent, memory_percent, disk_percent, incident_count, process_count, recorded_at
		FROM heartbeat_samples WHERE endpoint_id = ?
		ORDER BY recorded_at DESC, id DESC LIMIT ?`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("list heartbeat samples: %w", err)
	}
	defer rows.Close()

	var samples []*models.HeartbeatSample
	for rows.Next() {
		var sm models.HeartbeatSample
		var disk sql.NullFloat64
		var processCount sql.NullInt64
		var recordedAt int64

		if err := rows.Scan(&sm.ID, &sm.EndpointID, &sm.CPUPercent, &sm.MemoryPercent,
			&disk, &sm.IncidentCount, &processCount, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan heartbeat sample: %w", err)
		}
		sm.DiskPercent = floatPtr(disk)
		sm.ProcessCount = intPtr(processCount)
		sm.RecordedAt = time.Unix(recordedAt, 0).UTC()
		samples = append(samples, &sm)
	}
	return samples, rows.Err()
}
