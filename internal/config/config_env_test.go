package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvOverrides(t *testing.T) {
	envVars := map[string]string{
		"DATABASE_URL":         "/var/lib/oneshield/fleet.db",
		"PORT":                 "9443",
		"JWT_SECRET":           "change-me-in-prod",
		"JWT_EXPIRATION_HOURS": "72",
		"AGENT_SECRET":         "legacy-fleet-secret",
		"ENVIRONMENT":          "production",
		"LOG_LEVEL":            "warn",
		"LOG_FORMAT":           "json",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/oneshield/fleet.db", cfg.DatabaseURL)
	assert.Equal(t, 9443, cfg.Port)
	assert.Equal(t, "change-me-in-prod", cfg.JWTSecret)
	assert.Equal(t, 72, cfg.JWTExpirationHours)
	assert.Equal(t, 72*time.Hour, cfg.JWTLifetime())
	assert.Equal(t, "legacy-fleet-secret", cfg.AgentSecret)
	assert.Equal(t, "production", cfg.Environment)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.JWTSecretGenerated)
}

func TestLoadTrimsWhitespace(t *testing.T) {
	t.Setenv("DATABASE_URL", "  /tmp/oneshield.db  ")
	t.Setenv("JWT_SECRET", " secret ")
	t.Setenv("AGENT_SECRET", "   ")
	t.Setenv("ENVIRONMENT", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/oneshield.db", cfg.DatabaseURL)
	assert.Equal(t, "secret", cfg.JWTSecret)
	// A blank shared secret disables legacy agent registration entirely.
	assert.Empty(t, cfg.AgentSecret)
}
