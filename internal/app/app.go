package app

import (
	"context"
	"fmt"
	"net"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/marr05/RAG-TO-AWS/internal/data/repos/queries"
	apphttp "github.com/marr05/RAG-TO-AWS/internal/http"
	httpH "github.com/marr05/RAG-TO-AWS/internal/http/handlers"
	"github.com/marr05/RAG-TO-AWS/internal/ingestion/chunker"
	"github.com/marr05/RAG-TO-AWS/internal/jobs/queue"
	"github.com/marr05/RAG-TO-AWS/internal/jobs/worker"
	"github.com/marr05/RAG-TO-AWS/internal/observability"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
	"github.com/marr05/RAG-TO-AWS/internal/platform/openai"
	"github.com/marr05/RAG-TO-AWS/internal/services"
	"github.com/marr05/RAG-TO-AWS/internal/temporalx"
	"github.com/marr05/RAG-TO-AWS/internal/temporalx/temporalworker"
)

// Role selects which parts of the graph a process wires.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
	RoleIngest Role = "ingest"
)

type App struct {
	Log     *logger.Logger
	Cfg     Config
	Role    Role
	DB      *gorm.DB
	Redis   *goredis.Client
	Metrics *observability.Metrics

	Temporal    temporalsdkclient.Client
	TemporalCfg temporalx.Config

	Splitter  *chunker.Splitter
	Index     services.CorpusIndex
	Queries   queries.QueryRepo
	Processor services.QueryProcessor
	Service   services.QueryService
	Server    *apphttp.Server

	shutdownOTel func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context, role Role) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg, Role: role}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Cfg
	a.Log.Info("Wiring application", "role", a.Role, "dispatch_mode", cfg.DispatchMode, "job_store", cfg.JobStore, "vector_provider", cfg.Vector)

	a.shutdownOTel = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: cfg.ServiceName + "-" + string(a.Role),
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	if cfg.MetricsEnabled {
		a.Metrics = observability.NewMetrics()
	}

	queryPath := a.Role != RoleIngest
	if cfg.Vector == VectorProviderLocal || (queryPath && cfg.JobStore != JobStoreRedis) {
		gdb, err := openDatabase(a.Log, cfg)
		if err != nil {
			return err
		}
		a.DB = gdb
	}
	if queryPath && cfg.NeedsRedis() {
		rdb, err := newRedisClient(a.Log, cfg)
		if err != nil {
			return err
		}
		a.Redis = rdb
	}

	model, err := openai.NewClient(a.Log, openai.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("init openai: %w", err)
	}
	store, err := newVectorStore(a.Log, cfg.Vector, a.DB)
	if err != nil {
		return err
	}
	a.Splitter = chunker.New(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap))
	a.Index = services.NewCorpusIndex(a.Log, store, model)
	if !queryPath {
		return nil
	}

	if cfg.JobStore == JobStoreRedis {
		a.Queries = queries.NewRedisQueryRepo(a.Redis, a.Log, cfg.RedisPrefix)
	} else {
		a.Queries = queries.NewQueryRepo(a.DB, a.Log)
	}
	retriever := services.NewRetriever(a.Log, a.Index, cfg.RetrievalK)
	generator := services.NewGenerator(a.Log, model)
	a.Processor = services.NewQueryProcessor(a.Log, a.Queries, retriever, generator, cfg.ClaimLease)

	if cfg.DispatchMode == DispatchTemporal {
		a.TemporalCfg = temporalx.LoadConfig()
		tc, err := temporalx.NewClient(a.Log, a.TemporalCfg)
		if err != nil {
			return err
		}
		if tc == nil {
			return fmt.Errorf("DISPATCH_MODE=temporal requires TEMPORAL_ADDRESS")
		}
		a.Temporal = tc
	}
	if a.Role != RoleAPI {
		return nil
	}

	dispatcher, err := a.newDispatcher()
	if err != nil {
		return err
	}
	a.Service = services.NewQueryService(a.Log, cfg.QueryServiceConfig(), a.Queries, a.Processor, dispatcher)
	a.Server = apphttp.NewServer(apphttp.RouterConfig{
		Log:           a.Log,
		Metrics:       a.Metrics,
		ServiceName:   cfg.ServiceName,
		CORSOrigins:   cfg.CORSOrigins,
		QueryHandler:  httpH.NewQueryHandler(a.Service),
		HealthHandler: httpH.NewHealthHandler(),
	})
	return nil
}

// newDispatcher returns nil in sync mode, which makes the query service process inline.
func (a *App) newDispatcher() (services.Dispatcher, error) {
	switch a.Cfg.DispatchMode {
	case DispatchRedis:
		return queue.NewRedisPublisher(a.Log, a.Redis, a.Cfg.RedisQueue), nil
	case DispatchTemporal:
		return queue.NewTemporalPublisher(a.Log, a.Temporal, a.TemporalCfg.TaskQueue)
	default:
		return nil, nil
	}
}

// Start launches background loops: the metrics listener and collectors, and the expiry sweeper.
// The sweeper runs in the worker, or in the API when there is no worker.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		if a.DB != nil {
			a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
		}
		if a.Redis != nil {
			a.Metrics.StartRedisCollector(ctx, a.Log, a.Redis, a.Cfg.RedisQueue)
		}
	}

	sweeps := a.Role == RoleWorker || (a.Role == RoleAPI && a.Cfg.DispatchMode == DispatchSync)
	if sweeps && a.Queries != nil && a.Cfg.SweepInterval > 0 {
		worker.NewSweeper(a.Log, a.Queries, a.Cfg.SweepInterval).Start(ctx)
	}
}

// RunAPI serves HTTP until ctx is cancelled.
func (a *App) RunAPI(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized for %s", RoleAPI)
	}
	a.Start(ctx)
	return a.Server.Run(ctx, net.JoinHostPort("", a.Cfg.Port))
}

// RunWorker consumes dispatched records until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	if a == nil || a.Processor == nil {
		return fmt.Errorf("app not initialized for %s", RoleWorker)
	}
	handler := worker.NewHandler(a.Log, a.Queries, a.Processor, a.Metrics)

	switch a.Cfg.DispatchMode {
	case DispatchRedis:
		a.Start(ctx)
		pool := worker.NewPool(a.Log, a.Redis, handler, a.Cfg.RedisQueue, a.Cfg.WorkerConcurrency, a.Metrics)
		pool.Start(ctx)
		<-ctx.Done()
		pool.Wait()
		return nil
	case DispatchTemporal:
		runner, err := temporalworker.NewRunner(a.Log, a.Temporal, a.TemporalCfg, handler, a.Cfg.WorkerConcurrency)
		if err != nil {
			return err
		}
		a.Start(ctx)
		if err := runner.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	default:
		return fmt.Errorf("DISPATCH_MODE=%s processes queries inline; no worker to run", a.Cfg.DispatchMode)
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	closeDatabase(a.DB)
	if a.shutdownOTel != nil {
		_ = a.shutdownOTel(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
