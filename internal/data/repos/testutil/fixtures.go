package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
)

// NewQuery builds an in-flight record created at created with a six month retention window.
func NewQuery(id, userID string, created time.Time) *query.Query {
	created = created.UTC().Truncate(time.Microsecond)
	q := &query.Query{
		QueryID:     id,
		UserID:      userID,
		CreatedTime: created,
		TTL:         created.AddDate(0, 6, 0).Truncate(time.Second),
		QueryText:   "What is AWS Lambda?",
		Status:      query.StatusProcessing,
		UpdatedAt:   created,
	}
	return q.Normalize()
}

func SeedQuery(tb testing.TB, ctx context.Context, tx *gorm.DB, q *query.Query) *query.Query {
	tb.Helper()
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed query: %v", err)
	}
	return q
}
