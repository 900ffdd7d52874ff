package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

const (
	DefaultRedisQueue = "rag:queries"
	// DeadLetterSuffix names the list that keeps payloads workers could not decode.
	DeadLetterSuffix = ":dead"
)

// RedisPublisher pushes payloads onto a Redis list consumed with BRPOP.
type RedisPublisher struct {
	log   *logger.Logger
	rdb   redis.UniversalClient
	queue string
}

func NewRedisPublisher(baseLog *logger.Logger, rdb redis.UniversalClient, queue string) *RedisPublisher {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = DefaultRedisQueue
	}
	return &RedisPublisher{
		log:   baseLog.With("service", "RedisPublisher"),
		rdb:   rdb,
		queue: queue,
	}
}

func (p *RedisPublisher) Queue() string { return p.queue }

func (p *RedisPublisher) Dispatch(ctx context.Context, q *query.Query) error {
	body, err := Encode(q)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := p.rdb.LPush(ctx, p.queue, body).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", p.queue, err)
	}
	p.log.Debug("Payload queued", "query_id", q.QueryID, "queue", p.queue)
	return nil
}
