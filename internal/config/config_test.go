package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/walletintel")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != 8080 || cfg.Migration.PortfolioFraction != 0.70 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.DatabaseURL != "postgres://u:p@localhost:5432/walletintel" {
		t.Fatalf("env override not applied: %q", cfg.DatabaseURL)
	}
	if len(cfg.Tiers.Grid) != 10 || cfg.Tiers.Grid[0] != 3000 || cfg.Tiers.Grid[9] != 12000 {
		t.Fatalf("tier grid = %v", cfg.Tiers.Grid)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("database_url: postgres://file@localhost/db\napi_port: 9090\ntracking:\n  hours_lookback: 48\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != 9090 || cfg.Tracking.HoursLookback != 48 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.Consensus.MinWhales != 2 {
		t.Fatalf("MinWhales = %d", cfg.Consensus.MinWhales)
	}
}

func TestLoadRejectsMissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error without a database url")
	}
}

func TestLoadRejectsBadPortfolioFraction(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("migration:\n  portfolio_fraction: 1.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a fraction outside (0, 1)")
	}
}
