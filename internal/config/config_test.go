package config

import (
	"os"
	"testing"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost:5432/sched")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %q", cfg.Port)
	}
	if cfg.DBMaxConns != 20 {
		t.Errorf("expected default max conns 20, got %d", cfg.DBMaxConns)
	}
	if cfg.SkipGraceMinutes != 120 {
		t.Errorf("expected default grace 120, got %d", cfg.SkipGraceMinutes)
	}
	if !cfg.IsDev() {
		t.Error("expected default ENV to be development")
	}
}

func TestValidate_ProductionRequiresAuth(t *testing.T) {
	cfg := &Config{Env: "production"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for production without auth configuration")
	}

	cfg.AuthIssuer = "https://auth.example.com"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_TLSFilesRequired(t *testing.T) {
	cfg := &Config{Env: "development", TLSEnabled: true}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when TLS enabled without cert file")
	}

	cfg.TLSCertFile = "server.crt"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when TLS enabled without key file")
	}

	cfg.TLSKeyFile = "server.key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
