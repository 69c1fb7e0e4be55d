package store

import "fmt"

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		license_key TEXT NOT NULL DEFAULT '',
		max_agents  INTEGER NOT NULL DEFAULT 1,
		tier        TEXT NOT NULL DEFAULT 'personal_free',
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		org_id        TEXT NOT NULL REFERENCES organizations(id),
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL DEFAULT 'viewer',
		is_active     INTEGER NOT NULL DEFAULT 1,
		last_login    INTEGER,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(lower(email));
	CREATE INDEX IF NOT EXISTS idx_users_org ON users(org_id);

	CREATE TABLE IF NOT EXISTS endpoints (
		id               TEXT PRIMARY KEY,
		org_id           TEXT NOT NULL REFERENCES organizations(id),
		hostname         TEXT NOT NULL DEFAULT '',
		os_type          TEXT NOT NULL DEFAULT '',
		os_version       TEXT NOT NULL DEFAULT '',
		agent_version    TEXT NOT NULL DEFAULT '',
		ip_address       TEXT,
		hwid             TEXT NOT NULL,
		token_hash       TEXT NOT NULL,
		last_heartbeat   INTEGER,
		status           TEXT NOT NULL DEFAULT 'offline',
		baseline_hash    TEXT NOT NULL DEFAULT '',
		baseline_version INTEGER NOT NULL DEFAULT 0,
		policy_version   INTEGER NOT NULL DEFAULT 0,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL,
		UNIQUE(org_id, hwid)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_endpoints_token_hash ON endpoints(token_hash);
	CREATE INDEX IF NOT EXISTS idx_endpoints_org ON endpoints(org_id);
	CREATE INDEX IF NOT EXISTS idx_endpoints_status ON endpoints(org_id, status);

	CREATE TABLE IF NOT EXISTS organization_tokens (
		id         TEXT PRIMARY KEY,
		org_id     TEXT NOT NULL REFERENCES organizations(id),
		token      TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL DEFAULT '',
		expires_at INTEGER,
		max_uses   INTEGER,
		uses_count INTEGER NOT NULL DEFAULT 0,
		is_active  INTEGER NOT NULL DEFAULT 1,
		created_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		revoked_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_org_tokens_org ON organization_tokens(org_id);

	CREATE TABLE IF NOT EXISTS policies (
		id          TEXT PRIMARY KEY,
		org_id      TEXT NOT NULL REFERENCES organizations(id),
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		config      TEXT NOT NULL DEFAULT '{}',
		version     INTEGER NOT NULL DEFAULT 1,
		is_active   INTEGER NOT NULL DEFAULT 1,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_policies_org ON policies(org_id, is_active, version);

	CREATE TABLE IF NOT EXISTS baselines (
		id              TEXT PRIMARY KEY,
		endpoint_id     TEXT NOT NULL UNIQUE REFERENCES endpoints(id) ON DELETE CASCADE,
		mean_values     TEXT NOT NULL DEFAULT '[]',
		variance_values TEXT,
		sample_count    INTEGER NOT NULL DEFAULT 0,
		version         INTEGER NOT NULL DEFAULT 1,
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS incidents (
		id               TEXT PRIMARY KEY,
		endpoint_id      TEXT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
		severity         TEXT NOT NULL DEFAULT 'low',
		title            TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		mitre_techniques TEXT NOT NULL DEFAULT '[]',
		threat_class     TEXT NOT NULL DEFAULT '',
		confidence       REAL NOT NULL DEFAULT 0,
		status           TEXT NOT NULL DEFAULT 'open',
		assigned_to      TEXT,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL,
		resolved_at      INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_incidents_endpoint ON incidents(endpoint_id);
	CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status, severity);

	CREATE TABLE IF NOT EXISTS heartbeat_samples (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		endpoint_id    TEXT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
		cpu_percent    REAL NOT NULL DEFAULT 0,
		memory_percent REAL NOT NULL DEFAULT 0,
		disk_percent   REAL,
		incident_count INTEGER NOT NULL DEFAULT 0,
		process_count  INTEGER,
		recorded_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_heartbeat_samples_endpoint ON heartbeat_samples(endpoint_id, recorded_at);

	CREATE TABLE IF NOT EXISTS agent_commands (
		id          TEXT PRIMARY KEY,
		endpoint_id TEXT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
		kind        TEXT NOT NULL,
		payload     TEXT,
		status      TEXT NOT NULL DEFAULT 'pending',
		created_by  TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL,
		sent_at     INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_agent_commands_pending ON agent_commands(endpoint_id, status, created_at);

	CREATE TABLE IF NOT EXISTS audit_log (
		id            TEXT PRIMARY KEY,
		org_id        TEXT NOT NULL,
		user_id       TEXT,
		action        TEXT NOT NULL,
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id   TEXT NOT NULL DEFAULT '',
		details       TEXT,
		ip_address    TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_org ON audit_log(org_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
