package queries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/pkg/dbctx"
	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

const DefaultRedisPrefix = "rag"

type redisQueryRepo struct {
	rdb    redis.UniversalClient
	log    *logger.Logger
	prefix string
	now    func() time.Time
}

// NewRedisQueryRepo stores each record as a sparse JSON document that expires at its ttl.
// A per-user sorted set scored by creation time backs ListByUser.
func NewRedisQueryRepo(rdb redis.UniversalClient, baseLog *logger.Logger, prefix string) QueryRepo {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &redisQueryRepo{
		rdb:    rdb,
		log:    baseLog.With("repo", "RedisQueryRepo"),
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *redisQueryRepo) docKey(id string) string    { return r.prefix + ":query:" + id }
func (r *redisQueryRepo) leaseKey(id string) string  { return r.prefix + ":query:" + id + ":lease" }
func (r *redisQueryRepo) userKey(user string) string { return r.prefix + ":user_queries:" + user }

func encodeItem(q *query.Query) ([]byte, error) {
	return json.Marshal(q.Item())
}

func (r *redisQueryRepo) Put(dbc dbctx.Context, q *query.Query) error {
	if q == nil || q.QueryID == "" {
		return pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("put: query id is required"))
	}
	q.Normalize()
	raw, err := encodeItem(q)
	if err != nil {
		return pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("encode query: %w", err))
	}
	ctx := dbc.Context()
	if err := r.rdb.SetArgs(ctx, r.docKey(q.QueryID), raw, redis.SetArgs{ExpireAt: q.TTL}).Err(); err != nil {
		return pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("put query: %w", err))
	}
	member := redis.Z{Score: float64(q.CreatedTime.UnixMicro()), Member: q.QueryID}
	if err := r.rdb.ZAdd(ctx, r.userKey(q.UserID), member).Err(); err != nil {
		return pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("index query: %w", err))
	}
	return nil
}

func (r *redisQueryRepo) load(ctx context.Context, id string) (*query.Query, error) {
	raw, err := r.rdb.Get(ctx, r.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("query %q: %w", id, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("get query: %w", err))
	}
	q, err := query.FromItem(raw)
	if err != nil {
		return nil, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("decode query %q: %w", id, err))
	}
	return q, nil
}

func (r *redisQueryRepo) Get(dbc dbctx.Context, queryID string) (*query.Query, error) {
	q, err := r.load(dbc.Context(), queryID)
	if err != nil {
		return nil, err
	}
	if q.Expired(r.now()) {
		return nil, fmt.Errorf("query %q: %w", queryID, pkgerrors.ErrNotFound)
	}
	return q, nil
}

func (r *redisQueryRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*query.Query, error) {
	out := []*query.Query{}
	if limit <= 0 {
		return out, nil
	}
	ctx := dbc.Context()
	key := r.userKey(userID)
	now := r.now()
	var start int64
	for len(out) < limit {
		// Equal scores come back in reverse member order, i.e. query id descending.
		ids, err := r.rdb.ZRevRange(ctx, key, start, start+int64(limit)-1).Result()
		if err != nil {
			return nil, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("list queries: %w", err))
		}
		if len(ids) == 0 {
			break
		}
		start += int64(len(ids))

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = r.docKey(id)
		}
		vals, err := r.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("list queries: %w", err))
		}
		var stale []interface{}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				stale = append(stale, ids[i])
				continue
			}
			q, err := query.FromItem([]byte(s))
			if err != nil {
				r.log.Warn("Skipping undecodable query document", "query_id", ids[i], "error", err)
				continue
			}
			if q.Expired(now) {
				continue
			}
			out = append(out, q)
			if len(out) == limit {
				break
			}
		}
		if len(stale) > 0 {
			if err := r.rdb.ZRem(ctx, key, stale...).Err(); err != nil {
				r.log.Warn("Failed to prune expired index entries", "user_id", userID, "error", err)
			} else {
				start -= int64(len(stale))
			}
		}
	}
	return out, nil
}

func (r *redisQueryRepo) Claim(dbc dbctx.Context, queryID string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		lease = DefaultLease
	}
	ctx := dbc.Context()
	q, err := r.load(ctx, queryID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if q.Terminal() {
		return false, nil
	}
	ok, err := r.rdb.SetNX(ctx, r.leaseKey(queryID), r.now().Format(time.RFC3339Nano), lease).Result()
	if err != nil {
		return false, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("claim query: %w", err))
	}
	return ok, nil
}

func (r *redisQueryRepo) Finalize(dbc dbctx.Context, q *query.Query) (bool, error) {
	if q == nil || q.QueryID == "" {
		return false, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("finalize: query id is required"))
	}
	q.Normalize()
	q.UpdatedAt = r.now()
	raw, err := encodeItem(q)
	if err != nil {
		return false, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("encode query: %w", err))
	}

	ctx := dbc.Context()
	key := r.docKey(q.QueryID)
	var written bool
	txf := func(tx *redis.Tx) error {
		written = false
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		stored, err := query.FromItem(cur)
		if err != nil {
			return err
		}
		if stored.Terminal() {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, raw, redis.SetArgs{KeepTTL: true})
			pipe.Del(ctx, r.leaseKey(q.QueryID))
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = r.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		r.log.Warn("Retrying query finalize after concurrent write", "query_id", q.QueryID, "attempt", attempt)
	}
	if err != nil {
		return false, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("finalize query: %w", err))
	}
	if !written {
		r.log.Warn("Finalize skipped; record missing or already terminal", "query_id", q.QueryID)
	}
	return written, nil
}

// DeleteExpired prunes index entries whose documents Redis has already expired.
func (r *redisQueryRepo) DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error) {
	ctx := dbc.Context()
	var removed int64
	iter := r.rdb.Scan(ctx, 0, r.userKey("*"), 200).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()
		ids, err := r.rdb.ZRange(ctx, userKey, 0, -1).Result()
		if err != nil {
			return removed, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("sweep %s: %w", userKey, err))
		}
		for _, id := range ids {
			q, err := r.load(ctx, id)
			switch {
			case errors.Is(err, pkgerrors.ErrNotFound):
			case err != nil:
				continue
			case q.Expired(now):
				if err := r.rdb.Del(ctx, r.docKey(id)).Err(); err != nil {
					return removed, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("sweep %s: %w", id, err))
				}
			default:
				continue
			}
			if err := r.rdb.ZRem(ctx, userKey, id).Err(); err != nil {
				return removed, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("sweep %s: %w", userKey, err))
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, pkgerrors.Tag(pkgerrors.ErrPersistence, fmt.Errorf("sweep: %w", err))
	}
	return removed, nil
}
