package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/marr05/RAG-TO-AWS/internal/data/repos/queries"
	"github.com/marr05/RAG-TO-AWS/internal/http/middleware"
	"github.com/marr05/RAG-TO-AWS/internal/ingestion/chunker"
	"github.com/marr05/RAG-TO-AWS/internal/jobs/queue"
	"github.com/marr05/RAG-TO-AWS/internal/platform/envutil"
	"github.com/marr05/RAG-TO-AWS/internal/services"
)

type DispatchMode string

const (
	DispatchSync     DispatchMode = "sync"
	DispatchRedis    DispatchMode = "redis"
	DispatchTemporal DispatchMode = "temporal"
)

type JobStore string

const (
	JobStorePostgres JobStore = "postgres"
	JobStoreSQLite   JobStore = "sqlite"
	JobStoreRedis    JobStore = "redis"
)

// Config is the process configuration. Values come from defaults, then the CONFIG_FILE
// overlay, then the environment (including a local .env file).
type Config struct {
	LogMode     string `yaml:"log_mode"`
	Port        string `yaml:"port"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`

	DispatchMode DispatchMode   `yaml:"dispatch_mode"`
	JobStore     JobStore       `yaml:"job_store"`
	Vector       VectorProvider `yaml:"vector_provider"`

	RetentionMonths int `yaml:"retention_months"`
	RetrievalK      int `yaml:"retrieval_k"`
	ChunkSize       int `yaml:"chunk_size"`
	ChunkOverlap    int `yaml:"chunk_overlap"`
	QueryCharLimit  int `yaml:"query_char_limit"`
	ListLimit       int `yaml:"list_limit"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	RedisQueue    string `yaml:"redis_queue"`

	WorkerConcurrency int           `yaml:"worker_concurrency"`
	ClaimLease        time.Duration `yaml:"claim_lease"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`

	MetricsEnabled bool     `yaml:"metrics_enabled"`
	MetricsAddr    string   `yaml:"metrics_addr"`
	CORSOrigins    []string `yaml:"cors_allow_origins"`
}

func defaultConfig() Config {
	return Config{
		LogMode:           "development",
		Port:              "8080",
		ServiceName:       "rag-query",
		Environment:       "local",
		Version:           "dev",
		DispatchMode:      DispatchSync,
		JobStore:          JobStorePostgres,
		Vector:            VectorProviderQdrant,
		RetentionMonths:   services.DefaultRetentionMonths,
		RetrievalK:        services.DefaultRetrievalK,
		ChunkSize:         chunker.DefaultChunkSize,
		ChunkOverlap:      chunker.DefaultChunkOverlap,
		QueryCharLimit:    services.DefaultQueryCharLimit,
		ListLimit:         services.DefaultListLimit,
		RedisAddr:         "localhost:6379",
		RedisPrefix:       queries.DefaultRedisPrefix,
		RedisQueue:        queue.DefaultRedisQueue,
		WorkerConcurrency: 4,
		ClaimLease:        queries.DefaultLease,
		SweepInterval:     10 * time.Minute,
		CORSOrigins:       middleware.DefaultAllowOrigins,
	}
}

type ConfigErrorCode string

const (
	ConfigErrorUnreadableFile      ConfigErrorCode = "unreadable_config_file"
	ConfigErrorInvalidFile         ConfigErrorCode = "invalid_config_file"
	ConfigErrorInvalidDispatchMode ConfigErrorCode = "invalid_dispatch_mode"
	ConfigErrorInvalidJobStore     ConfigErrorCode = "invalid_job_store"
	ConfigErrorInvalidVector       ConfigErrorCode = "invalid_vector_provider"
	ConfigErrorInvalidChunking     ConfigErrorCode = "invalid_chunking"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid config"
	}
	if e.Cause != nil {
		return fmt.Sprintf("invalid config (code=%s value=%q): %v", e.Code, e.Value, e.Cause)
	}
	return fmt.Sprintf("invalid config (code=%s value=%q)", e.Code, e.Value)
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// LoadConfig resolves the process configuration. A missing .env file is not an error.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, &ConfigError{Code: ConfigErrorUnreadableFile, Value: ".env", Cause: err}
	}

	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Code: ConfigErrorUnreadableFile, Value: path, Cause: err}
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return &ConfigError{Code: ConfigErrorInvalidFile, Value: path, Cause: err}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.Port = envutil.String("PORT", c.Port)
	c.ServiceName = envutil.String("OTEL_SERVICE_NAME", c.ServiceName)
	c.Environment = envutil.String("APP_ENV", c.Environment)
	c.Version = envutil.String("APP_VERSION", c.Version)

	c.DispatchMode = DispatchMode(strings.ToLower(envutil.String("DISPATCH_MODE", string(c.DispatchMode))))
	c.JobStore = JobStore(strings.ToLower(envutil.String("JOB_STORE", string(c.JobStore))))
	c.Vector = VectorProvider(strings.ToLower(envutil.String("VECTOR_PROVIDER", string(c.Vector))))

	c.RetentionMonths = envutil.Int("RETENTION_MONTHS", c.RetentionMonths)
	c.RetrievalK = envutil.Int("RETRIEVAL_K", c.RetrievalK)
	c.ChunkSize = envutil.Int("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = envutil.Int("CHUNK_OVERLAP", c.ChunkOverlap)
	c.QueryCharLimit = envutil.Int("QUERY_CHAR_LIMIT", c.QueryCharLimit)
	c.ListLimit = envutil.Int("LIST_LIMIT", c.ListLimit)

	c.RedisAddr = envutil.String("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envutil.String("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envutil.Int("REDIS_DB", c.RedisDB)
	c.RedisPrefix = envutil.String("REDIS_PREFIX", c.RedisPrefix)
	c.RedisQueue = envutil.String("REDIS_QUEUE", c.RedisQueue)

	c.WorkerConcurrency = envutil.Int("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.ClaimLease = envutil.Seconds("CLAIM_LEASE_SECONDS", int(c.ClaimLease/time.Second))
	c.SweepInterval = envutil.Seconds("SWEEP_INTERVAL_SECONDS", int(c.SweepInterval/time.Second))

	c.MetricsEnabled = envutil.Bool("METRICS_ENABLED", c.MetricsEnabled)
	c.MetricsAddr = envutil.String("METRICS_ADDR", c.MetricsAddr)
	if raw := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS")); raw != "" {
		c.CORSOrigins = splitList(raw)
	}
}

func (c Config) Validate() error {
	switch c.DispatchMode {
	case DispatchSync, DispatchRedis, DispatchTemporal:
	default:
		return &ConfigError{Code: ConfigErrorInvalidDispatchMode, Value: string(c.DispatchMode)}
	}
	switch c.JobStore {
	case JobStorePostgres, JobStoreSQLite, JobStoreRedis:
	default:
		return &ConfigError{Code: ConfigErrorInvalidJobStore, Value: string(c.JobStore)}
	}
	switch c.Vector {
	case VectorProviderQdrant, VectorProviderLocal:
	default:
		return &ConfigError{Code: ConfigErrorInvalidVector, Value: string(c.Vector)}
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return &ConfigError{Code: ConfigErrorInvalidChunking, Value: fmt.Sprintf("size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap)}
	}
	return nil
}

// NeedsSQL reports whether a relational database backs the job store or the vector index.
func (c Config) NeedsSQL() bool {
	return c.JobStore == JobStorePostgres || c.JobStore == JobStoreSQLite || c.Vector == VectorProviderLocal
}

func (c Config) NeedsRedis() bool {
	return c.JobStore == JobStoreRedis || c.DispatchMode == DispatchRedis
}

func (c Config) QueryServiceConfig() services.QueryServiceConfig {
	return services.QueryServiceConfig{
		RetentionMonths: c.RetentionMonths,
		QueryCharLimit:  c.QueryCharLimit,
		ListLimit:       c.ListLimit,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
