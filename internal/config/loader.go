package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "provgraph.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PROVGRAPH_PORT")
	setString(&cfg.Store.Backend, "PROVGRAPH_STORE_BACKEND")
	setString(&cfg.FalkorDB.URL, "FALKORDB_URL")
	setString(&cfg.FalkorDB.Graph, "PROVGRAPH_GRAPH_NAME")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PROVGRAPH_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PROVGRAPH_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PROVGRAPH_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PROVGRAPH_PG_MAX_CONN_IDLE_TIME")
	setBool(&cfg.NATS.Enabled, "PROVGRAPH_NATS_ENABLED")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Ingest.APIKeyHash, "PROVGRAPH_API_KEY_HASH")
	setInt(&cfg.Ingest.BatchMax, "PROVGRAPH_BATCH_MAX")
	setInt64(&cfg.Ingest.BodyLimitBytes, "PROVGRAPH_BODY_LIMIT_BYTES")
	setInt64(&cfg.Writer.Parallelism, "PROVGRAPH_WRITER_PARALLELISM")
	setInt(&cfg.Writer.MaxAttempts, "PROVGRAPH_WRITER_MAX_ATTEMPTS")
	setDuration(&cfg.Writer.BaseBackoff, "PROVGRAPH_WRITER_BASE_BACKOFF")
	setDuration(&cfg.Writer.DedupTTL, "PROVGRAPH_WRITER_DEDUP_TTL")
	setInt64(&cfg.Cache.MaxSizeMB, "PROVGRAPH_CACHE_SIZE_MB")
	setString(&cfg.Logging.Level, "PROVGRAPH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "PROVGRAPH_LOG_SERVICE")
	setInt(&cfg.Logging.AsyncBuffer, "PROVGRAPH_LOG_ASYNC_BUFFER")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "PROVGRAPH_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Backend {
	case "falkordb":
		if cfg.FalkorDB.URL == "" {
			return errors.New("falkordb.url is required")
		}
		if cfg.FalkorDB.Graph == "" {
			return errors.New("falkordb.graph is required")
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "memory":
	default:
		return fmt.Errorf("store.backend %q must be falkordb, postgres or memory", cfg.Store.Backend)
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if cfg.Writer.Parallelism < 1 {
		return errors.New("writer.parallelism must be >= 1")
	}
	if cfg.Writer.MaxAttempts < 1 {
		return errors.New("writer.max_attempts must be >= 1")
	}
	if cfg.Ingest.BatchMax < 1 {
		return errors.New("ingest.batch_max must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
