package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configEnvKeys = []string{
	"CONFIG_FILE", "LOG_MODE", "PORT", "OTEL_SERVICE_NAME", "APP_ENV", "APP_VERSION",
	"DISPATCH_MODE", "JOB_STORE", "VECTOR_PROVIDER",
	"RETENTION_MONTHS", "RETRIEVAL_K", "CHUNK_SIZE", "CHUNK_OVERLAP", "QUERY_CHAR_LIMIT", "LIST_LIMIT",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_PREFIX", "REDIS_QUEUE",
	"WORKER_CONCURRENCY", "CLAIM_LEASE_SECONDS", "SWEEP_INTERVAL_SECONDS",
	"METRICS_ENABLED", "METRICS_ADDR", "CORS_ALLOW_ORIGINS",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DispatchMode != DispatchSync {
		t.Fatalf("dispatch mode: want=%q got=%q", DispatchSync, cfg.DispatchMode)
	}
	if cfg.JobStore != JobStorePostgres || cfg.Vector != VectorProviderQdrant {
		t.Fatalf("backends: got job_store=%q vector=%q", cfg.JobStore, cfg.Vector)
	}
	if cfg.RetentionMonths != 6 || cfg.RetrievalK != 3 || cfg.QueryCharLimit != 2000 || cfg.ListLimit != 25 {
		t.Fatalf("query defaults: got %+v", cfg)
	}
	if cfg.ChunkSize != 600 || cfg.ChunkOverlap != 120 {
		t.Fatalf("chunking: want=600/120 got=%d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port: want=%q got=%q", "8080", cfg.Port)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DISPATCH_MODE", "Redis")
	t.Setenv("JOB_STORE", "sqlite")
	t.Setenv("RETRIEVAL_K", "5")
	t.Setenv("CLAIM_LEASE_SECONDS", "30")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DispatchMode != DispatchRedis {
		t.Fatalf("dispatch mode: want=%q got=%q", DispatchRedis, cfg.DispatchMode)
	}
	if cfg.JobStore != JobStoreSQLite {
		t.Fatalf("job store: want=%q got=%q", JobStoreSQLite, cfg.JobStore)
	}
	if cfg.RetrievalK != 5 {
		t.Fatalf("retrieval k: want=5 got=%d", cfg.RetrievalK)
	}
	if cfg.ClaimLease != 30*time.Second {
		t.Fatalf("claim lease: want=30s got=%s", cfg.ClaimLease)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins: got=%v", cfg.CORSOrigins)
	}
}

func TestLoadConfigFileOverlayThenEnv(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("dispatch_mode: temporal\nlist_limit: 10\nsweep_interval: 90s\nredis_queue: custom:queue\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LIST_LIMIT", "7")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DispatchMode != DispatchTemporal {
		t.Fatalf("dispatch mode: want=%q got=%q", DispatchTemporal, cfg.DispatchMode)
	}
	if cfg.ListLimit != 7 {
		t.Fatalf("env should win over file: want=7 got=%d", cfg.ListLimit)
	}
	if cfg.SweepInterval != 90*time.Second {
		t.Fatalf("sweep interval: want=90s got=%s", cfg.SweepInterval)
	}
	if cfg.RedisQueue != "custom:queue" {
		t.Fatalf("redis queue: want=%q got=%q", "custom:queue", cfg.RedisQueue)
	}
}

func TestLoadConfigMetricsToggle(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MetricsEnabled {
		t.Fatalf("metrics should be off by default")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("metrics_enabled: true\nmetrics_addr: \":9191\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.MetricsEnabled || cfg.MetricsAddr != ":9191" {
		t.Fatalf("file overlay: got enabled=%v addr=%q", cfg.MetricsEnabled, cfg.MetricsAddr)
	}

	t.Setenv("METRICS_ENABLED", "false")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MetricsEnabled {
		t.Fatalf("env should win over file: want=false got=true")
	}
}

func TestLoadConfigRejectsUnknownModes(t *testing.T) {
	cases := []struct {
		key, value string
		code       ConfigErrorCode
	}{
		{"DISPATCH_MODE", "kafka", ConfigErrorInvalidDispatchMode},
		{"JOB_STORE", "dynamo", ConfigErrorInvalidJobStore},
		{"VECTOR_PROVIDER", "pinecone", ConfigErrorInvalidVector},
		{"CHUNK_OVERLAP", "600", ConfigErrorInvalidChunking},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := LoadConfig()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got=%v", err)
			}
			if ce.Code != tc.code {
				t.Fatalf("code: want=%q got=%q", tc.code, ce.Code)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadConfig()
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Code != ConfigErrorUnreadableFile {
		t.Fatalf("expected unreadable_config_file, got=%v", err)
	}
}

func TestConfigBackendNeeds(t *testing.T) {
	cfg := defaultConfig()
	if !cfg.NeedsSQL() || cfg.NeedsRedis() {
		t.Fatalf("default: want sql only")
	}
	cfg.JobStore = JobStoreRedis
	if cfg.NeedsSQL() || !cfg.NeedsRedis() {
		t.Fatalf("redis job store with qdrant: want redis only")
	}
	cfg.Vector = VectorProviderLocal
	if !cfg.NeedsSQL() {
		t.Fatalf("local vectors need sql")
	}
}
