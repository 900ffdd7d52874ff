package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/marr05/RAG-TO-AWS/internal/data/repos/queries"
	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/jobs/queue"
	"github.com/marr05/RAG-TO-AWS/internal/observability"
	"github.com/marr05/RAG-TO-AWS/internal/pkg/dbctx"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
	"github.com/marr05/RAG-TO-AWS/internal/services"
)

// Handler is the worker ingress: it decodes a message body and runs the record through the processor.
type Handler struct {
	log       *logger.Logger
	repo      queries.QueryRepo
	processor services.QueryProcessor
	metrics   *observability.Metrics
}

func NewHandler(baseLog *logger.Logger, repo queries.QueryRepo, processor services.QueryProcessor, metrics *observability.Metrics) *Handler {
	return &Handler{
		log:       baseLog.With("component", "QueryHandler"),
		repo:      repo,
		processor: processor,
		metrics:   metrics,
	}
}

// Handle returns an error matching pkg/errors.ErrDecode for bodies that fail validation.
func (h *Handler) Handle(ctx context.Context, body []byte) (err error) {
	q, err := queue.Decode(body)
	if err != nil {
		return err
	}
	start := time.Now()
	if q.Terminal() {
		h.log.Info("Ignoring payload for terminal record", "query_id", q.QueryID, "status", q.Status)
		h.metrics.ObserveQueryJob("skipped", time.Since(start))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Query processing panic", "query_id", q.QueryID, "panic", r)
			h.markFailed(ctx, q)
			h.metrics.ObserveQueryJob("error", time.Since(start))
			err = fmt.Errorf("panic while processing query %s", q.QueryID)
		}
	}()

	out, err := h.processor.Process(ctx, q)
	h.metrics.ObserveQueryJob(outcome(out, err), time.Since(start))
	return err
}

func outcome(q *query.Query, err error) string {
	switch {
	case q != nil && q.Status == query.StatusFailed:
		return "failed"
	case err != nil:
		return "error"
	case q != nil && q.IsComplete:
		return "completed"
	default:
		return "skipped"
	}
}

func (h *Handler) markFailed(ctx context.Context, q *query.Query) {
	q.Fail("internal error")
	if _, err := h.repo.Finalize(dbctx.Context{Ctx: ctx}, q); err != nil {
		h.log.Error("Failed to record panic outcome", "query_id", q.QueryID, "error", err)
	}
}
