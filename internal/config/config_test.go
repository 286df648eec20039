package config

import "testing"

func TestLoadAppliesDefaultsWithoutEnv(t *testing.T) {
	t.Setenv("PRINTARR_CONFIG_PATH", "")
	t.Setenv("PRINTARR_DATABASE_URL", "postgres://printarr@localhost/printarr")

	cfg, err := Load(Overrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != 3333 {
		t.Fatalf("expected default port 3333, got %d", cfg.Port)
	}
	if cfg.ConfigPath != "data/config" {
		t.Fatalf("expected default config path, got %q", cfg.ConfigPath)
	}
	if cfg.Addr() != "0.0.0.0:3333" {
		t.Fatalf("unexpected addr: %q", cfg.Addr())
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("PRINTARR_DATABASE_URL", "")
	if _, err := Load(Overrides{}); err == nil {
		t.Fatal("expected error when no database is configured")
	}
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("PRINTARR_PORT", "4444")
	t.Setenv("PRINTARR_DATABASE_URL", "postgres://printarr@localhost/printarr")

	cfg, err := Load(Overrides{Port: 9000})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("expected flag override to win, got %d", cfg.Port)
	}
}

func TestLoadPortFromEnv(t *testing.T) {
	t.Setenv("PRINTARR_PORT", "8081")
	t.Setenv("PRINTARR_DATABASE_URL", "postgres://printarr@localhost/printarr")

	cfg, err := Load(Overrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != 8081 {
		t.Fatalf("expected port from env, got %d", cfg.Port)
	}
}

func TestLoadInvalidPortErrors(t *testing.T) {
	t.Setenv("PRINTARR_PORT", "not-a-number")
	t.Setenv("PRINTARR_DATABASE_URL", "postgres://printarr@localhost/printarr")

	if _, err := Load(Overrides{}); err == nil {
		t.Fatal("expected error for invalid PRINTARR_PORT")
	}
}

func TestLoadDebugFromEnv(t *testing.T) {
	t.Setenv("PRINTARR_DEBUG", "true")
	t.Setenv("PRINTARR_DATABASE_URL", "postgres://printarr@localhost/printarr")

	cfg, err := Load(Overrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Debug {
		t.Fatal("expected debug true from env")
	}
}
