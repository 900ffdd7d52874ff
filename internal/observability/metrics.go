package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/marr05/RAG-TO-AWS/internal/platform/envutil"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

// Metrics is the process metric registry. All methods are no-ops on a nil receiver.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	queryJobs    *CounterVec
	queryLatency *HistogramVec
	deadLetters  *Counter

	queueDepth *GaugeVec
	dbStats    *GaugeVec
	redisUp    *Gauge
	redisPing  *Gauge
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10)
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("rag_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"rag_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("rag_api_inflight_requests", "In-flight API requests."),
		queryJobs:   NewCounterVec("rag_query_jobs_total", "Query jobs handled by the worker, by outcome.", []string{"outcome"}),
		queryLatency: NewHistogramVec(
			"rag_query_job_duration_seconds",
			"Worker processing time per query job, by outcome.",
			[]string{"outcome"},
			[]float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		deadLetters: NewCounter("rag_query_dead_letters_total", "Payloads moved to the dead-letter list."),
		queueDepth:  NewGaugeVec("rag_queue_depth", "Pending messages per Redis list.", []string{"queue"}),
		dbStats:     NewGaugeVec("rag_db_pool", "database/sql pool statistics.", []string{"stat"}),
		redisUp:     NewGauge("rag_redis_up", "1 when the last Redis ping succeeded."),
		redisPing:   NewGauge("rag_redis_ping_seconds", "Latency of the last Redis ping."),
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveQueryJob records one worker delivery. outcome is completed, failed, skipped or error.
func (m *Metrics) ObserveQueryJob(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.queryJobs.Inc(outcome)
	m.queryLatency.Observe(dur.Seconds(), outcome)
}

func (m *Metrics) IncDeadLetter() {
	if m == nil {
		return
	}
	m.deadLetters.Inc()
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests,
		m.apiLatency,
		m.apiInflight,
		m.queryJobs,
		m.queryLatency,
		m.deadLetters,
		m.queueDepth,
		m.dbStats,
		m.redisUp,
		m.redisPing,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("metrics: db handle unavailable", "error", err)
		return
	}
	m.every(ctx, func() {
		stats := sqlDB.Stats()
		m.dbStats.Set(float64(stats.OpenConnections), "open")
		m.dbStats.Set(float64(stats.InUse), "in_use")
		m.dbStats.Set(float64(stats.Idle), "idle")
		m.dbStats.Set(float64(stats.WaitCount), "wait_count")
		m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_seconds")
	})
}

// StartRedisCollector pings rdb and samples LLEN for each queue on the scrape interval.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient, queues ...string) {
	if m == nil || rdb == nil {
		return
	}
	m.every(ctx, func() {
		m.CollectRedis(ctx, log, rdb, queues...)
	})
}

func (m *Metrics) CollectRedis(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient, queues ...string) {
	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		m.redisUp.Set(0)
		log.Warn("metrics: redis ping failed", "error", err)
		return
	}
	m.redisUp.Set(1)
	m.redisPing.Set(time.Since(start).Seconds())
	for _, q := range queues {
		n, err := rdb.LLen(ctx, q).Result()
		if err != nil {
			log.Warn("metrics: queue depth failed", "queue", q, "error", err)
			continue
		}
		m.queueDepth.Set(float64(n), q)
	}
}

func (m *Metrics) every(ctx context.Context, fn func()) {
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}
