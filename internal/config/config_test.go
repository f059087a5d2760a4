package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gratheon/graphql-gateway/internal/config"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir into temp dir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoad_ReadsNamedBundle(t *testing.T) {
	dir := chdirTemp(t)
	contents := `
service_name: graphql-gateway
listen_port: 7000
schema_registry_url: https://registry.internal
user_cycle_url: https://users.internal
poll_interval_ms: 5000
router_signature: shh
`
	if err := os.WriteFile(filepath.Join(dir, "gateway.test.yaml"), []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}

	cfg, err := config.Load("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServiceName != "graphql-gateway" {
		t.Errorf("ServiceName = %q, want graphql-gateway", cfg.ServiceName)
	}
	if cfg.ListenPort != 7000 {
		t.Errorf("ListenPort = %d, want 7000", cfg.ListenPort)
	}
	if cfg.PollIntervalMs != 5000 {
		t.Errorf("PollIntervalMs = %d, want 5000", cfg.PollIntervalMs)
	}
}

func TestLoad_DefaultsListenPortAndTimeout(t *testing.T) {
	dir := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(dir, "gateway.dev.yaml"), []byte(`service_name: gw`), 0o644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenPort != 6100 {
		t.Errorf("ListenPort = %d, want default 6100", cfg.ListenPort)
	}
	if cfg.TimeoutDuration != "5s" {
		t.Errorf("TimeoutDuration = %q, want default 5s", cfg.TimeoutDuration)
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	chdirTemp(t)
	if _, err := config.Load("missing"); err == nil {
		t.Fatal("expected an error when the config bundle file does not exist")
	}
}

func TestLoadFromEnv_ReadsEnvID(t *testing.T) {
	dir := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(dir, "gateway.staging.yaml"), []byte(`service_name: gw-staging`), 0o644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
	t.Setenv("ENV_ID", "staging")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServiceName != "gw-staging" {
		t.Errorf("ServiceName = %q, want gw-staging", cfg.ServiceName)
	}
}
