package main

import (
	"errors"
	"flag"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func envFrom(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil, envFrom(nil))
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Interval != 60*time.Second {
		t.Errorf("Interval = %v, want 60s", cfg.Interval)
	}
	if cfg.StateFile != defaultStateDir+"/state.json" {
		t.Errorf("StateFile = %q", cfg.StateFile)
	}
	if cfg.LogLevel != zerolog.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	env := envFrom(map[string]string{
		"ONESHIELD_URL":                  "https://fleet.example.com/",
		"ONESHIELD_ENROLL_TOKEN":         "ORG_12345678_deadbeef",
		"ONESHIELD_INTERVAL":             "30s",
		"ONESHIELD_INSECURE_SKIP_VERIFY": "yes",
		"LOG_LEVEL":                      "debug",
	})

	cfg, err := loadConfig(nil, env)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.ServerURL != "https://fleet.example.com/" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.EnrollToken != "ORG_12345678_deadbeef" {
		t.Errorf("EnrollToken = %q", cfg.EnrollToken)
	}
	if cfg.Interval != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", cfg.Interval)
	}
	if !cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify = false, want true from env")
	}
	if cfg.LogLevel != zerolog.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}

	// Flags override environment.
	cfg, err = loadConfig([]string{
		"--url", "http://localhost:9000",
		"--interval", "10s",
		"--email", "a@b.test",
		"--password", "hunter2hunter2",
	}, env)
	if err != nil {
		t.Fatalf("loadConfig() with flags error: %v", err)
	}
	if cfg.ServerURL != "http://localhost:9000" {
		t.Errorf("flag ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Interval != 10*time.Second {
		t.Errorf("flag Interval = %v, want 10s", cfg.Interval)
	}
	if cfg.Email != "a@b.test" || cfg.Password != "hunter2hunter2" {
		t.Errorf("credentials = %q / %q", cfg.Email, cfg.Password)
	}
}

func TestLoadConfigVersionFlag(t *testing.T) {
	_, err := loadConfig([]string{"--version"}, envFrom(nil))
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("loadConfig(--version) = %v, want flag.ErrHelp", err)
	}
}

func TestResolveTokenInternal(t *testing.T) {
	files := map[string]string{
		"/etc/oneshield/token":       "file-token",
		defaultStateDir + "/token":   "default-token",
		"/etc/oneshield/empty-token": "   ",
	}
	readFile := func(name string) ([]byte, error) {
		if content, ok := files[name]; ok {
			return []byte(content), nil
		}
		return nil, os.ErrNotExist
	}

	tests := []struct {
		name      string
		tokenFlag string
		tokenFile string
		envToken  string
		want      string
	}{
		{
			name:      "flag wins over everything",
			tokenFlag: "flag-token",
			tokenFile: "/etc/oneshield/token",
			envToken:  "env-token",
			want:      "flag-token",
		},
		{
			name:      "token file wins over env",
			tokenFile: "/etc/oneshield/token",
			envToken:  "env-token",
			want:      "file-token",
		},
		{
			name:      "missing token file falls through to env",
			tokenFile: "/etc/oneshield/nope",
			envToken:  "env-token",
			want:      "env-token",
		},
		{
			name:      "whitespace-only token file falls through to env",
			tokenFile: "/etc/oneshield/empty-token",
			envToken:  "env-token",
			want:      "env-token",
		},
		{
			name: "default token file is the last resort",
			want: "default-token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveTokenInternal(tt.tokenFlag, tt.tokenFile, tt.envToken, readFile)
			if got != tt.want {
				t.Errorf("resolveTokenInternal() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	truthy := []string{"1", "true", "TRUE", " yes ", "y", "on"}
	for _, v := range truthy {
		if !parseBool(v) {
			t.Errorf("parseBool(%q) = false, want true", v)
		}
	}
	falsy := []string{"", "0", "false", "no", "off", "maybe"}
	for _, v := range falsy {
		if parseBool(v) {
			t.Errorf("parseBool(%q) = true, want false", v)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"  warn  ", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"bogus", zerolog.Level(0), true},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
