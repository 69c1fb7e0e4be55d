package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "/tmp/oneshield-test.db")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENVIRONMENT", "test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "")
	t.Setenv("JWT_EXPIRATION_HOURS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.JWTExpirationHours != 24 {
		t.Errorf("JWTExpirationHours = %d, want 24", cfg.JWTExpirationHours)
	}
	if got := cfg.JWTLifetime(); got != 24*time.Hour {
		t.Errorf("JWTLifetime = %v, want 24h", got)
	}
	if cfg.IsProduction() {
		t.Error("IsProduction = true for ENVIRONMENT=test")
	}
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded without DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error %q should name the missing variable", err)
	}
}

func TestLoadProductionRequiresJWTSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded without JWT_SECRET in production")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("error %q should name JWT_SECRET", err)
	}
}

func TestLoadDevGeneratesJWTSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTSecret == "" {
		t.Fatal("dev Load left JWTSecret empty")
	}
	if !cfg.JWTSecretGenerated {
		t.Error("JWTSecretGenerated = false for generated secret")
	}
}

func TestLoadBadPort(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "99999")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted out-of-range PORT")
	}

	t.Setenv("PORT", "abc")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted non-integer PORT")
	}
}
