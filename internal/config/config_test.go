package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
listen:
  postgres_port: 6432
  api_port: 8080

defaults:
  min_connections: 2
  max_connections: 20
  idle_timeout: 5m
  max_lifetime: 30m
  acquire_timeout: 10s

data_sources:
  db1:
    type: native.postgres
    options:
      host: localhost
      port: "5432"

entities:
  - id: users
    source:
      data_source_id: db1
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.PostgresPort != 6432 {
		t.Errorf("expected postgres port 6432, got %d", cfg.Listen.PostgresPort)
	}
	if cfg.Defaults.MaxConnections != 20 {
		t.Errorf("expected max connections 20, got %d", cfg.Defaults.MaxConnections)
	}
	if cfg.Defaults.IdleTimeout != 5*time.Minute {
		t.Errorf("expected idle timeout 5m, got %v", cfg.Defaults.IdleTimeout)
	}

	ds, ok := cfg.DataSources["db1"]
	if !ok {
		t.Fatal("db1 not found")
	}
	if ds.Type != "native.postgres" {
		t.Errorf("expected type native.postgres, got %s", ds.Type)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_DB_PASSWORD", "secret123")
	defer os.Unsetenv("TEST_DB_PASSWORD")

	yaml := `
data_sources:
  db1:
    type: native.postgres
    options:
      password: ${TEST_DB_PASSWORD}
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DataSources["db1"].Options["password"] != "secret123" {
		t.Errorf("expected substituted password, got %q", cfg.DataSources["db1"].Options["password"])
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "data source missing type",
			yaml: `
data_sources:
  db1:
    options: {}
`,
		},
		{
			name: "entity missing data source",
			yaml: `
entities:
  - id: users
    source:
      data_source_id: nope
`,
		},
		{
			name: "entity missing id",
			yaml: `
entities:
  - source:
      data_source_id: db1
data_sources:
  db1:
    type: native.postgres
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	path := writeTemp(t, `node: {}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.PostgresPort != 5432 {
		t.Errorf("expected default postgres port 5432, got %d", cfg.Listen.PostgresPort)
	}
	if cfg.Listen.APIPort != 8080 {
		t.Errorf("expected default api port 8080, got %d", cfg.Listen.APIPort)
	}
	if cfg.Defaults.MinConnections != 1 {
		t.Errorf("expected default min connections 1, got %d", cfg.Defaults.MinConnections)
	}
	if cfg.FDWBridge.SocketPath == "" {
		t.Error("expected default fdw bridge socket path to be set")
	}
}

func TestDataSourceConfigEffectiveValues(t *testing.T) {
	defaults := PoolDefaults{
		MinConnections: 2,
		MaxConnections: 20,
		IdleTimeout:    5 * time.Minute,
		MaxLifetime:    30 * time.Minute,
		AcquireTimeout: 10 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}

	maxConn := 50
	ds := DataSourceConfig{MaxConnections: &maxConn}

	if ds.EffectiveMinConnections(defaults) != 2 {
		t.Error("expected default min connections")
	}
	if ds.EffectiveMaxConnections(defaults) != 50 {
		t.Error("expected overridden max connections of 50")
	}
	if ds.EffectiveConnectTimeout(defaults) != 5*time.Second {
		t.Error("expected default connect timeout")
	}

	ct := 3 * time.Second
	ds.ConnectTimeout = &ct
	if ds.EffectiveConnectTimeout(defaults) != 3*time.Second {
		t.Error("expected overridden connect timeout of 3s")
	}
}

func TestDataSourceConfigRedactsSecretOptions(t *testing.T) {
	ds := DataSourceConfig{Options: map[string]string{
		"password": "hunter2",
		"host":     "localhost",
	}}
	r := ds.Redacted()
	if r.Options["password"] != "***REDACTED***" {
		t.Errorf("expected password redacted, got %q", r.Options["password"])
	}
	if r.Options["host"] != "localhost" {
		t.Errorf("expected host untouched, got %q", r.Options["host"])
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
