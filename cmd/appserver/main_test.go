package main

import (
	"os"
	"testing"

	"github.com/tenantsync/engine/internal/config"
)

func TestConfigLoadAppliesDefaultsWithoutFile(t *testing.T) {
	os.Unsetenv("CONFIG_FILE")
	os.Setenv("DATABASE_URL", "postgres://example")
	os.Setenv("APP_BASE_URL", "http://localhost:8080")
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("APP_BASE_URL")
	})

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.DSN != "postgres://example" {
		t.Fatalf("expected env-provided DSN, got %q", cfg.Database.DSN)
	}
}

func TestConfigLoadFailsWithoutRequiredFields(t *testing.T) {
	os.Unsetenv("CONFIG_FILE")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("APP_BASE_URL")

	if _, err := config.Load(); err == nil {
		t.Fatalf("expected missing required configuration to fail validation")
	}
}
