// Package queries persists query job records. Two stores are provided: a SQL store on gorm and a
// Redis store holding one sparse JSON document per record.
package queries

import (
	"time"

	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/pkg/dbctx"
)

// DefaultLease bounds how long a claimed record stays invisible to other workers.
const DefaultLease = 10 * time.Minute

type QueryRepo interface {
	// Put upserts by query id; writing the same id twice overwrites.
	Put(dbc dbctx.Context, q *query.Query) error
	// Get returns the record or an error matching pkg/errors.ErrNotFound. Expired records are not returned.
	Get(dbc dbctx.Context, queryID string) (*query.Query, error)
	// ListByUser returns at most limit records for the user, newest first.
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*query.Query, error)
	// Claim marks an in-flight record as being processed. It returns false when the record is
	// missing, already terminal or held by another unexpired lease.
	Claim(dbc dbctx.Context, queryID string, lease time.Duration) (bool, error)
	// Finalize writes a terminal record. It returns false when the stored record is already terminal.
	Finalize(dbc dbctx.Context, q *query.Query) (bool, error)
	// DeleteExpired removes records whose ttl is at or before now.
	DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error)
}
