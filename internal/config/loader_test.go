package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8090" {
		t.Errorf("expected port 8090, got %s", cfg.Server.Port)
	}
	if cfg.Store.Backend != "falkordb" {
		t.Errorf("expected falkordb backend, got %s", cfg.Store.Backend)
	}
	if cfg.Writer.BaseBackoff != 100*time.Millisecond {
		t.Errorf("expected base backoff 100ms, got %v", cfg.Writer.BaseBackoff)
	}
	if cfg.Ingest.BatchMax != 256 {
		t.Errorf("expected batch max 256, got %d", cfg.Ingest.BatchMax)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
store:
  backend: "postgres"
postgres:
  max_conns: 20
writer:
  parallelism: 4
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("expected postgres backend, got %s", cfg.Store.Backend)
	}
	if cfg.Postgres.MaxConns != 20 {
		t.Errorf("expected max_conns 20, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Writer.Parallelism != 4 {
		t.Errorf("expected parallelism 4, got %d", cfg.Writer.Parallelism)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.FalkorDB.URL != "redis://localhost:6379" {
		t.Errorf("expected default FalkorDB URL, got %s", cfg.FalkorDB.URL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("PROVGRAPH_PORT", "7070")
	t.Setenv("FALKORDB_URL", "redis://falkor:6379")
	t.Setenv("PROVGRAPH_GRAPH_NAME", "agent_provenance")
	t.Setenv("PROVGRAPH_WRITER_MAX_ATTEMPTS", "5")
	t.Setenv("PROVGRAPH_WRITER_BASE_BACKOFF", "250ms")
	t.Setenv("PROVGRAPH_NATS_ENABLED", "true")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.FalkorDB.URL != "redis://falkor:6379" {
		t.Errorf("expected env FalkorDB URL, got %s", cfg.FalkorDB.URL)
	}
	if cfg.FalkorDB.Graph != "agent_provenance" {
		t.Errorf("expected graph agent_provenance, got %s", cfg.FalkorDB.Graph)
	}
	if cfg.Writer.MaxAttempts != 5 {
		t.Errorf("expected max attempts 5, got %d", cfg.Writer.MaxAttempts)
	}
	if cfg.Writer.BaseBackoff != 250*time.Millisecond {
		t.Errorf("expected base backoff 250ms, got %v", cfg.Writer.BaseBackoff)
	}
	if !cfg.NATS.Enabled {
		t.Error("expected NATS enabled")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, false},
		{"memory backend valid", func(c *Config) { c.Store.Backend = "memory" }, false},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, true},
		{"missing port", func(c *Config) { c.Server.Port = "" }, true},
		{"falkordb without url", func(c *Config) { c.FalkorDB.URL = "" }, true},
		{"postgres without dsn", func(c *Config) {
			c.Store.Backend = "postgres"
			c.Postgres.DSN = ""
		}, true},
		{"nats enabled without url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.URL = ""
		}, true},
		{"zero parallelism", func(c *Config) { c.Writer.Parallelism = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
