package queries

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/pkg/dbctx"
	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

const maxWriteAttempts = 3

type queryRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewQueryRepo(db *gorm.DB, baseLog *logger.Logger) QueryRepo {
	return &queryRepo{
		db:  db,
		log: baseLog.With("repo", "QueryRepo"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *queryRepo) tx(dbc dbctx.Context) *gorm.DB {
	return dbc.DB(r.db)
}

// withRetry reruns fn on serialization failures and deadlocks.
func (r *queryRepo) withRetry(op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = fn()
		if err == nil || !isRetryable(err) {
			return err
		}
		r.log.Warn("Retrying query write", "op", op, "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * 25 * time.Millisecond)
	}
	return err
}

func (r *queryRepo) Put(dbc dbctx.Context, q *query.Query) error {
	if q == nil || q.QueryID == "" {
		return pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("put: query id is required"))
	}
	q.Normalize()
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = r.now()
	}
	err := r.withRetry("put", func() error {
		return r.tx(dbc).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "query_id"}},
			UpdateAll: true,
		}).Create(q).Error
	})
	return mapError("put query", err)
}

func (r *queryRepo) Get(dbc dbctx.Context, queryID string) (*query.Query, error) {
	var rows []*query.Query
	if err := r.tx(dbc).Where("query_id = ?", queryID).Limit(1).Find(&rows).Error; err != nil {
		return nil, mapError("get query", err)
	}
	if len(rows) == 0 || rows[0].Expired(r.now()) {
		return nil, fmt.Errorf("query %q: %w", queryID, pkgerrors.ErrNotFound)
	}
	return rows[0].Normalize(), nil
}

func (r *queryRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*query.Query, error) {
	out := []*query.Query{}
	if limit <= 0 {
		return out, nil
	}
	err := r.tx(dbc).
		Where("user_id = ? AND ttl > ?", userID, r.now()).
		Order("created_time DESC").
		Order("query_id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, mapError("list queries", err)
	}
	for _, q := range out {
		q.Normalize()
	}
	return out, nil
}

func (r *queryRepo) Claim(dbc dbctx.Context, queryID string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		lease = DefaultLease
	}
	now := r.now()
	var claimed bool
	err := r.withRetry("claim", func() error {
		res := r.tx(dbc).Model(&query.Query{}).
			Where("query_id = ? AND status = ? AND (locked_at IS NULL OR locked_at < ?)", queryID, query.StatusProcessing, now.Add(-lease)).
			Updates(map[string]interface{}{
				"locked_at":  now,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		claimed = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, mapError("claim query", err)
	}
	return claimed, nil
}

func (r *queryRepo) Finalize(dbc dbctx.Context, q *query.Query) (bool, error) {
	if q == nil || q.QueryID == "" {
		return false, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("finalize: query id is required"))
	}
	q.Normalize()
	now := r.now()
	q.UpdatedAt = now
	var written bool
	err := r.withRetry("finalize", func() error {
		res := r.tx(dbc).Model(&query.Query{}).
			Where("query_id = ? AND status = ?", q.QueryID, query.StatusProcessing).
			Updates(map[string]interface{}{
				"answer_text":    q.AnswerText,
				"sources":        q.Sources,
				"is_complete":    q.IsComplete,
				"status":         q.Status,
				"failure_reason": q.FailureReason,
				"locked_at":      nil,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		written = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, mapError("finalize query", err)
	}
	if !written {
		r.log.Warn("Finalize skipped; record missing or already terminal", "query_id", q.QueryID)
	}
	return written, nil
}

func (r *queryRepo) DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error) {
	res := r.tx(dbc).Where("ttl <= ?", now.UTC()).Delete(&query.Query{})
	if res.Error != nil {
		return 0, mapError("delete expired queries", res.Error)
	}
	return res.RowsAffected, nil
}
