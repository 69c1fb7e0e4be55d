package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all control plane configuration, snapshotted from the
// environment at process start.
type Config struct {
	DatabaseURL        string
	Port               int
	JWTSecret          string
	JWTExpirationHours int
	AgentSecret        string // legacy registration shared secret; empty disables the flow
	Environment        string
	LogLevel           string
	LogFormat          string

	// JWTSecretGenerated marks a dev-only random secret so the server can
	// warn that sessions will not survive a restart.
	JWTSecretGenerated bool
}

// Load reads configuration from environment variables. A .env file is
// loaded if present but not required.
func Load() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	jwtHours, err := envOrDefaultInt("JWT_EXPIRATION_HOURS", 24)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Port:               port,
		JWTSecret:          strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTExpirationHours: jwtHours,
		AgentSecret:        strings.TrimSpace(os.Getenv("AGENT_SECRET")),
		Environment:        envOrDefault("ENVIRONMENT", "development"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "auto"),
	}

	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("generate dev JWT secret: %w", err)
		}
		cfg.JWTSecret = secret
		cfg.JWTSecretGenerated = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether the server runs with production hardening.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// JWTLifetime returns the session token lifetime.
func (c *Config) JWTLifetime() time.Duration {
	return time.Duration(c.JWTExpirationHours) * time.Hour
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.JWTExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1, got %d", c.JWTExpirationHours)
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}
