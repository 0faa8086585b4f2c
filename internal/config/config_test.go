package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "environment: production\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LocalAPI.Host != "127.0.0.1" || cfg.LocalAPI.Port != 8090 {
		t.Errorf("unexpected local api defaults: %+v", cfg.LocalAPI)
	}
	if cfg.Storage.Path != "credentials.json" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.NATS.MaxReconnects != 10 {
		t.Errorf("nats max reconnects = %d", cfg.NATS.MaxReconnects)
	}
}

func TestEndpointsTable(t *testing.T) {
	tests := []struct {
		env     string
		baseURL string
		authURL string
	}{
		{"production", "https://app2.keyless.rocks", "https://remotapp.rently.com"},
		{"atlas", "https://smarthome.rentlyatlas.com", "https://remotapp.rentlyatlas.com"},
		{"coreqe", "https://smarthome.qe.rentlycore.com", "https://remotapp.qe.rentlycore.com"},
		{"qeop", "https://smarthome.rentlyqeop.com", "https://remotapp.rentlyqeop.com"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Environment: tt.env}
			ep, err := cfg.Endpoints()
			if err != nil {
				t.Fatalf("endpoints: %v", err)
			}
			if ep.BaseURL != tt.baseURL {
				t.Errorf("base url = %q, want %q", ep.BaseURL, tt.baseURL)
			}
			if ep.AuthURL != tt.authURL {
				t.Errorf("auth url = %q, want %q", ep.AuthURL, tt.authURL)
			}
		})
	}
}

func TestEndpointsUnknownEnvironment(t *testing.T) {
	cfg := &Config{Environment: "staging-7"}
	if _, err := cfg.Endpoints(); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	if _, err := Load(writeConfig(t, "environment: nonsense\n")); err == nil {
		t.Fatal("expected load to fail on unknown environment")
	}
}

func TestEndpointsExplicitOverrides(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		API: APIConfig{
			BaseURL: "http://localhost:9000",
			AuthURL: "http://localhost:9001",
		},
	}
	ep, err := cfg.Endpoints()
	if err != nil {
		t.Fatalf("endpoints: %v", err)
	}
	if ep.BaseURL != "http://localhost:9000" || ep.AuthURL != "http://localhost:9001" {
		t.Errorf("overrides not applied: %+v", ep)
	}
}

func TestEndpointsPartialOverride(t *testing.T) {
	cfg := &Config{
		Environment: "aura",
		API:         APIConfig{BaseURL: "http://localhost:9000"},
	}
	ep, err := cfg.Endpoints()
	if err != nil {
		t.Fatalf("endpoints: %v", err)
	}
	if ep.BaseURL != "http://localhost:9000" {
		t.Errorf("base override not applied: %q", ep.BaseURL)
	}
	if ep.AuthURL != "https://remotapp.rentlyprotons.com" {
		t.Errorf("auth url should come from the table: %q", ep.AuthURL)
	}
}

func TestEnvVarOverrides(t *testing.T) {
	t.Setenv("BRIDGE_ENV", "core")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BRIDGE_CREDENTIALS_FILE", "/tmp/creds.json")

	cfg, err := Load(writeConfig(t, "environment: production\nlog:\n  level: info\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Environment != "core" {
		t.Errorf("environment = %q, want core", cfg.Environment)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Storage.Path != "/tmp/creds.json" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
}
