package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PIPELINE_RCA_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddress != ":8080" || cfg.Notifications.Retention != 30*24*time.Hour {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`server:
  httpAddress: ":9000"
jenkins:
  baseURL: http://file.local
  pollInterval: 1m
  jobs: [api]
cache:
  enabled: true
  backend: memory
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("JENKINS_URL", "http://env.local")
	t.Setenv("JENKINS_API_TOKEN", "secret")
	t.Setenv("PIPELINE_RCA_JENKINS_JOBS", "api, web ,")
	t.Setenv("PIPELINE_RCA_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddress != ":9000" || cfg.Jenkins.PollInterval != time.Minute {
		t.Fatalf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Jenkins.BaseURL != "http://env.local" || cfg.Jenkins.APIToken != "secret" || !cfg.Logging.JSON {
		t.Fatalf("env overrides not applied: %+v", cfg.Jenkins)
	}
	if diff := cmp.Diff([]string{"api", "web"}, cfg.Jenkins.Jobs); diff != "" {
		t.Fatalf("jobs mismatch (-want +got):\n%s", diff)
	}
	if cfg.Server.MaxSSEClients != 100 {
		t.Fatalf("expected defaults retained for unset keys")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Backend = CacheBackendValkey
	cfg.Jenkins.MaxConcurrent = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	cfg = defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
