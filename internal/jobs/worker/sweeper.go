package worker

import (
	"context"
	"time"

	"github.com/marr05/RAG-TO-AWS/internal/data/repos/queries"
	"github.com/marr05/RAG-TO-AWS/internal/pkg/dbctx"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

// Sweeper periodically removes records whose retention window has passed.
type Sweeper struct {
	log      *logger.Logger
	repo     queries.QueryRepo
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(baseLog *logger.Logger, repo queries.QueryRepo, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		log:      baseLog.With("component", "ExpirySweeper"),
		repo:     repo,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.SweepOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.repo.DeleteExpired(dbctx.Context{Ctx: ctx}, s.now())
	if err != nil {
		s.log.Warn("Expired query sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		s.log.Info("Expired queries removed", "count", n)
	}
	return n
}
