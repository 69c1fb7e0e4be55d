// Package store persists the control plane state in SQLite. All methods are
// tenant-aware: anything queried on behalf of a principal filters on org_id.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// maxOpenConns bounds the single contended resource of the control plane.
const maxOpenConns = 10

// Store provides CRUD and the race-sensitive composite operations over the
// control plane database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at databaseURL, which is a SQLite
// file path or ":memory:".
func Open(databaseURL string) (*Store, error) {
	path := strings.TrimPrefix(databaseURL, "sqlite://")

	// _txlock=immediate: admission transactions mix reads and writes, and a
	// deferred BEGIN would fail on a stale snapshot under concurrent
	// enrollment instead of serializing on the write lock.
	params := url.Values{
		"_txlock": []string{"immediate"},
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}

	dsn := path + "?" + params.Encode()
	if path == ":memory:" {
		// A pooled :memory: DSN would give each connection its own database.
		dsn = "file::memory:?cache=shared&" + params.Encode()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(maxOpenConns)
	}
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Ping checks database connectivity (used by the health endpoint).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// IsUniqueViolation reports whether an error is a SQLite unique constraint
// failure. Used as the backstop behind pre-insert existence checks.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableTimeUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	ts := time.Unix(v.Int64, 0).UTC()
	return &ts
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
