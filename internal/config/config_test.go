package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Name != "edge-adapter" {
		t.Fatalf("expected default service name, got %q", cfg.Service.Name)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("expected default http port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Adapter.WorkerPoolSize != 20 {
		t.Fatalf("expected default worker pool size 20, got %d", cfg.Adapter.WorkerPoolSize)
	}
	if cfg.Adapter.SessionTimeout != 60*time.Second {
		t.Fatalf("expected default session timeout 60s, got %v", cfg.Adapter.SessionTimeout)
	}
}

func TestLoadOverlaysFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
service:
  name: custom-adapter
adapter:
  worker_pool_size: 5
endpoints:
  - uri: "opc.tcp://10.0.0.1:4840"
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Name != "custom-adapter" {
		t.Fatalf("expected overridden service name, got %q", cfg.Service.Name)
	}
	if cfg.Adapter.WorkerPoolSize != 5 {
		t.Fatalf("expected overridden worker pool size 5, got %d", cfg.Adapter.WorkerPoolSize)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].URI != "opc.tcp://10.0.0.1:4840" {
		t.Fatalf("unexpected endpoints: %+v", cfg.Endpoints)
	}
}

func TestLoadRejectsWorkerPoolSizeBelowTwo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
adapter:
  worker_pool_size: 1
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for worker_pool_size below 2")
	}
}

func TestLoadRejectsEndpointMissingURI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
endpoints:
  - security_policy: "None"
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for endpoint missing uri")
	}
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
