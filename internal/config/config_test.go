package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := Default()
	if result := cfg.Validate(); !result.Valid() {
		t.Fatalf("default config should validate, got: %s", result.Error())
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("LATERAL_MAX_TRACKED_SESSIONS", "42")
	os.Setenv("LATERAL_GATEKEEPER_LEVEL", "strict")
	os.Setenv("LATERAL_GATEKEEPER_CRITICAL_TECHNIQUES", "six_hats, random_entry")
	defer os.Unsetenv("LATERAL_MAX_TRACKED_SESSIONS")
	defer os.Unsetenv("LATERAL_GATEKEEPER_LEVEL")
	defer os.Unsetenv("LATERAL_GATEKEEPER_CRITICAL_TECHNIQUES")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Session.MaxTrackedSessions != 42 {
		t.Errorf("expected MaxTrackedSessions=42, got %d", cfg.Session.MaxTrackedSessions)
	}
	if cfg.Gatekeeper.Level != "strict" {
		t.Errorf("expected Level=strict, got %s", cfg.Gatekeeper.Level)
	}
	if len(cfg.Gatekeeper.CriticalTechniques) != 2 || cfg.Gatekeeper.CriticalTechniques[1] != "random_entry" {
		t.Errorf("expected critical techniques parsed from CSV, got %v", cfg.Gatekeeper.CriticalTechniques)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	content := `{"gatekeeper": {"level": "lenient"}, "timeouts": {"stale_threshold": 90000000000}}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Gatekeeper.Level != "lenient" {
		t.Errorf("expected level=lenient from file, got %s", cfg.Gatekeeper.Level)
	}
	if cfg.Timeouts.StaleThreshold != 90*time.Second {
		t.Errorf("expected stale_threshold=90s from file, got %s", cfg.Timeouts.StaleThreshold)
	}
}

func TestValidateRejectsBadGatekeeperLevel(t *testing.T) {
	cfg := Default()
	cfg.Gatekeeper.Level = "extreme"
	result := cfg.Validate()
	if result.Valid() {
		t.Fatal("expected validation failure for bad gatekeeper level")
	}
}

func TestValidateWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateWithDefaults(); err != nil {
		t.Fatalf("ValidateWithDefaults failed: %v", err)
	}
	if cfg.Session.MaxTrackedSessions == 0 {
		t.Error("expected MaxTrackedSessions to be filled from defaults")
	}
	if cfg.Storage.Driver == "" {
		t.Error("expected Storage.Driver to be filled from defaults")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "config.json")

	cfg := Default()
	cfg.Gatekeeper.Level = "strict"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Gatekeeper.Level != "strict" {
		t.Errorf("expected round-tripped level=strict, got %s", loaded.Gatekeeper.Level)
	}
}
