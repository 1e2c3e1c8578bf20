package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ADDITIVE_A_RATIO", "0.04")
	t.Setenv("STRICT_STOCK", "true")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "-5")

	cfg := Load()
	if cfg.AdditiveARatio != 0.04 {
		t.Fatalf("expected additive A ratio 0.04, got %v", cfg.AdditiveARatio)
	}
	if cfg.AdditiveBRatio != 0.015 {
		t.Fatalf("expected default additive B ratio 0.015, got %v", cfg.AdditiveBRatio)
	}
	if !cfg.StrictStock {
		t.Fatalf("expected strict stock enabled")
	}
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("expected invalid TTL to fall back to 30, got %d", cfg.ReportCacheTTLSeconds)
	}
	if cfg.GasMaterialCode != "GAZ001" {
		t.Fatalf("expected default gas material code, got %q", cfg.GasMaterialCode)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("GAS_MATERIAL_CODE=GAZ900\nSERVICE_NAME=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("SERVICE_NAME", "from-env")
	t.Setenv("GAS_MATERIAL_CODE", "")
	os.Unsetenv("GAS_MATERIAL_CODE")

	cfg := Load()
	if cfg.GasMaterialCode != "GAZ900" {
		t.Fatalf("expected code from env file, got %q", cfg.GasMaterialCode)
	}
	if cfg.ServiceName != "from-env" {
		t.Fatalf("expected process env to win, got %q", cfg.ServiceName)
	}
}

func TestLoadBootstrapAdmin(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("BOOTSTRAP_ADMIN_USERNAME", "")
	os.Unsetenv("BOOTSTRAP_ADMIN_USERNAME")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "first-login-secret")

	cfg := Load()
	if cfg.BootstrapAdminUser != "admin" {
		t.Fatalf("expected default bootstrap username admin, got %q", cfg.BootstrapAdminUser)
	}
	if cfg.BootstrapAdminPass != "first-login-secret" {
		t.Fatalf("expected bootstrap password from env, got %q", cfg.BootstrapAdminPass)
	}
}
