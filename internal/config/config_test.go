package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DBHost != "localhost" || cfg.DBPort != 5432 {
		t.Errorf("DB defaults = %s:%d, want localhost:5432", cfg.DBHost, cfg.DBPort)
	}
	if cfg.ConnectMaxRetries != 5 {
		t.Errorf("ConnectMaxRetries = %d, want 5", cfg.ConnectMaxRetries)
	}
	if cfg.ConnectBaseDelayMs != 1000 {
		t.Errorf("ConnectBaseDelayMs = %d, want 1000", cfg.ConnectBaseDelayMs)
	}
	if cfg.AdminEmail != "" {
		t.Errorf("AdminEmail = %q, want unset by default", cfg.AdminEmail)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("CONNECT_MAX_RETRIES", "8")
	t.Setenv("CONNECT_BASE_DELAY_MS", "250")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("ADMIN_EMAIL", "ops@talentbridge.example")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.DBHost != "db.internal" {
		t.Errorf("DBHost = %q, want db.internal", cfg.DBHost)
	}
	if cfg.ConnectMaxRetries != 8 || cfg.ConnectBaseDelayMs != 250 {
		t.Errorf("probe config = %d/%dms, want 8/250ms", cfg.ConnectMaxRetries, cfg.ConnectBaseDelayMs)
	}
	if cfg.RedisHost != "cache.internal" {
		t.Errorf("RedisHost = %q, want cache.internal", cfg.RedisHost)
	}
	if cfg.AdminEmail != "ops@talentbridge.example" {
		t.Errorf("AdminEmail = %q", cfg.AdminEmail)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]struct {
		key   string
		value string
	}{
		"bad port":         {"PORT", "eighty"},
		"bad db port":      {"DB_PORT", "x"},
		"bad retries":      {"CONNECT_MAX_RETRIES", "0"},
		"negative retries": {"CONNECT_MAX_RETRIES", "-1"},
		"bad base delay":   {"CONNECT_BASE_DELAY_MS", "fast"},
		"zero base delay":  {"CONNECT_BASE_DELAY_MS", "0"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}
