package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marr05/RAG-TO-AWS/internal/jobs/queue"
	"github.com/marr05/RAG-TO-AWS/internal/observability"
	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

type PayloadHandler interface {
	Handle(ctx context.Context, body []byte) error
}

// Pool consumes a Redis list with a fixed number of BRPOP loops.
type Pool struct {
	log         *logger.Logger
	rdb         redis.UniversalClient
	handler     PayloadHandler
	queue       string
	concurrency int
	pollTimeout time.Duration
	metrics     *observability.Metrics

	wg sync.WaitGroup
}

func NewPool(baseLog *logger.Logger, rdb redis.UniversalClient, handler PayloadHandler, queueName string, concurrency int, metrics *observability.Metrics) *Pool {
	queueName = strings.TrimSpace(queueName)
	if queueName == "" {
		queueName = queue.DefaultRedisQueue
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		log:         baseLog.With("component", "QueryWorkerPool"),
		rdb:         rdb,
		handler:     handler,
		queue:       queueName,
		concurrency: concurrency,
		pollTimeout: 5 * time.Second,
		metrics:     metrics,
	}
}

func (p *Pool) DeadLetterQueue() string { return p.queue + queue.DeadLetterSuffix }

// Start launches the loops and returns; Wait blocks until they exit after ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.log.Info("Starting query worker pool", "concurrency", p.concurrency, "queue", p.queue)
	for i := 0; i < p.concurrency; i++ {
		workerID := i + 1
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runLoop(ctx, workerID)
		}()
	}
}

func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) runLoop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			p.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		}
		res, err := p.rdb.BRPop(ctx, p.pollTimeout, p.queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.Warn("BRPOP failed", "worker_id", workerID, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		// res is [queue, value].
		if len(res) != 2 {
			continue
		}
		p.handle(ctx, workerID, []byte(res[1]))
	}
}

// handle runs one message. A record already written by the processor keeps its own outcome; decode
// failures are moved to the dead-letter list since they can never succeed.
func (p *Pool) handle(ctx context.Context, workerID int, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Query handler panic", "worker_id", workerID, "panic", r)
		}
	}()

	err := p.handler.Handle(ctx, body)
	switch {
	case err == nil:
	case errors.Is(err, pkgerrors.ErrDecode):
		p.log.Warn("Undecodable payload moved to dead-letter queue", "worker_id", workerID, "queue", p.DeadLetterQueue(), "error", err)
		p.metrics.IncDeadLetter()
		if dlqErr := p.rdb.LPush(context.WithoutCancel(ctx), p.DeadLetterQueue(), body).Err(); dlqErr != nil {
			p.log.Error("Dead-letter push failed", "worker_id", workerID, "error", dlqErr)
		}
	default:
		p.log.Warn("Query processing failed", "worker_id", workerID, "error", err)
	}
}
