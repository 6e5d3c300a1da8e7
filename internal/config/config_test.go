package config

import "testing"

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("ZAPPER_DB_BACKEND", "postgres")
	t.Setenv("ZAPPER_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("ZAPPER_CATALOG_PATH", "/srv/zapper/catalog.json")
	t.Setenv("ZAPPER_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.CatalogPath != "/srv/zapper/catalog.json" {
		t.Fatalf("unexpected catalog path: %q", cfg.CatalogPath)
	}
	if cfg.DBBackend != DatabasePostgres {
		t.Fatalf("unexpected backend: %q", cfg.DBBackend)
	}
}

func TestLoadDefaultsToSQLite(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("unexpected default backend: %q", cfg.DBBackend)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected a default sqlite DSN")
	}
	if cfg.CooldownDays != 7 {
		t.Fatalf("unexpected default cooldown: %d", cfg.CooldownDays)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "legacy")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("ZAPPER_DB_BACKEND", "oracle")
	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail for unknown database backend")
	}
}

func TestLoadProductionRequiresAdminToken(t *testing.T) {
	t.Setenv("ZAPPER_ENV", "production")
	t.Setenv("ZAPPER_ADMIN_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without an admin token")
	}

	t.Setenv("ZAPPER_ADMIN_TOKEN", "changeme")
	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to reject the default admin token")
	}

	t.Setenv("ZAPPER_ADMIN_TOKEN", "6f1c9d2e8b")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with a real token to succeed: %v", err)
	}
}

func TestRefreshEveryFallsBack(t *testing.T) {
	cfg := &Config{RefreshIntervalMinutes: 0}
	if got := cfg.RefreshEvery(); got.Minutes() != 30 {
		t.Fatalf("unexpected fallback interval: %v", got)
	}
	cfg.RefreshIntervalMinutes = 5
	if got := cfg.RefreshEvery(); got.Minutes() != 5 {
		t.Fatalf("unexpected interval: %v", got)
	}
}
