package queries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/marr05/RAG-TO-AWS/internal/data/repos/testutil"
	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/pkg/dbctx"
	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
)

type store struct {
	repo   QueryRepo
	setNow func(func() time.Time)
}

func stores(t *testing.T) map[string]func(t *testing.T) store {
	return map[string]func(t *testing.T) store{
		"sql": func(t *testing.T) store {
			r := NewQueryRepo(testutil.DB(t), testutil.Logger(t)).(*queryRepo)
			return store{repo: r, setNow: func(f func() time.Time) { r.now = f }}
		},
		"redis": func(t *testing.T) store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			r := NewRedisQueryRepo(rdb, testutil.Logger(t), "test").(*redisQueryRepo)
			return store{repo: r, setNow: func(f func() time.Time) { r.now = f }}
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s store)) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func dbc() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func TestQueryRepoPutGetRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		created := time.Now().UTC().Add(-time.Minute)
		in := testutil.NewQuery("q1", "user-a", created)
		if err := s.repo.Put(dbc(), in); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, err := s.repo.Get(dbc(), "q1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.QueryID != "q1" || got.UserID != "user-a" || got.QueryText != in.QueryText {
			t.Fatalf("identity fields: got=%+v", got)
		}
		if !got.CreatedTime.Equal(in.CreatedTime) || !got.TTL.Equal(in.TTL) {
			t.Fatalf("times: want created=%v ttl=%v got created=%v ttl=%v", in.CreatedTime, in.TTL, got.CreatedTime, got.TTL)
		}
		if got.AnswerText != nil || got.IsComplete || got.Status != query.StatusProcessing {
			t.Fatalf("in-flight state: got=%+v", got)
		}
		if got.Sources == nil || len(got.Sources) != 0 {
			t.Fatalf("sources: want empty non-nil got=%#v", got.Sources)
		}
	})
}

func TestQueryRepoPutOverwrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		now := time.Now().UTC()
		if err := s.repo.Put(dbc(), testutil.NewQuery("q1", "u", now)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		again := testutil.NewQuery("q1", "u", now)
		again.Complete("answer", []string{"a.pdf:0:0"})
		if err := s.repo.Put(dbc(), again); err != nil {
			t.Fatalf("Put again: %v", err)
		}
		got, err := s.repo.Get(dbc(), "q1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !got.IsComplete || got.AnswerText == nil || *got.AnswerText != "answer" {
			t.Fatalf("overwrite: got=%+v", got)
		}
		list, err := s.repo.ListByUser(dbc(), "u", 25)
		if err != nil || len(list) != 1 {
			t.Fatalf("list after overwrite: got=%v err=%v", idsOf(list), err)
		}
	})
}

func TestQueryRepoGetMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		_, err := s.repo.Get(dbc(), "nope")
		if !errors.Is(err, pkgerrors.ErrNotFound) {
			t.Fatalf("want ErrNotFound got=%v", err)
		}
	})
}

func TestQueryRepoListByUserNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		base := time.Now().UTC().Add(-time.Hour)
		for i, id := range []string{"t1", "t2", "t3"} {
			if err := s.repo.Put(dbc(), testutil.NewQuery(id, "user-a", base.Add(time.Duration(i)*time.Minute))); err != nil {
				t.Fatalf("Put %s: %v", id, err)
			}
		}
		if err := s.repo.Put(dbc(), testutil.NewQuery("other", "user-b", base)); err != nil {
			t.Fatalf("Put other: %v", err)
		}

		got, err := s.repo.ListByUser(dbc(), "user-a", 25)
		if err != nil {
			t.Fatalf("ListByUser: %v", err)
		}
		if ids := idsOf(got); len(ids) != 3 || ids[0] != "t3" || ids[1] != "t2" || ids[2] != "t1" {
			t.Fatalf("order: got=%v", ids)
		}

		got, err = s.repo.ListByUser(dbc(), "user-a", 2)
		if err != nil {
			t.Fatalf("ListByUser limited: %v", err)
		}
		if ids := idsOf(got); len(ids) != 2 || ids[0] != "t3" || ids[1] != "t2" {
			t.Fatalf("limited: got=%v", ids)
		}

		got, err = s.repo.ListByUser(dbc(), "nobody", 25)
		if err != nil {
			t.Fatalf("ListByUser empty: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("unknown user: want empty slice got=%#v", got)
		}
	})
}

func TestQueryRepoListByUserTiesByQueryID(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		at := time.Now().UTC().Add(-time.Minute)
		for _, id := range []string{"aaa", "ccc", "bbb"} {
			if err := s.repo.Put(dbc(), testutil.NewQuery(id, "u", at)); err != nil {
				t.Fatalf("Put %s: %v", id, err)
			}
		}
		got, err := s.repo.ListByUser(dbc(), "u", 25)
		if err != nil {
			t.Fatalf("ListByUser: %v", err)
		}
		if ids := idsOf(got); len(ids) != 3 || ids[0] != "ccc" || ids[1] != "bbb" || ids[2] != "aaa" {
			t.Fatalf("tie order: got=%v", ids)
		}
	})
}

func TestQueryRepoClaimAndFinalize(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		q := testutil.NewQuery("q1", "u", time.Now().UTC())
		if err := s.repo.Put(dbc(), q); err != nil {
			t.Fatalf("Put: %v", err)
		}

		ok, err := s.repo.Claim(dbc(), "q1", time.Minute)
		if err != nil || !ok {
			t.Fatalf("first claim: ok=%v err=%v", ok, err)
		}
		ok, err = s.repo.Claim(dbc(), "q1", time.Minute)
		if err != nil || ok {
			t.Fatalf("second claim must lose: ok=%v err=%v", ok, err)
		}

		q.Complete("Lambda runs code without servers.", []string{"a.pdf:0:0"})
		written, err := s.repo.Finalize(dbc(), q)
		if err != nil || !written {
			t.Fatalf("Finalize: written=%v err=%v", written, err)
		}

		late := testutil.NewQuery("q1", "u", q.CreatedTime)
		late.Fail("generation unavailable")
		written, err = s.repo.Finalize(dbc(), late)
		if err != nil || written {
			t.Fatalf("second finalize must be skipped: written=%v err=%v", written, err)
		}

		got, err := s.repo.Get(dbc(), "q1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !got.IsComplete || got.Status != query.StatusComplete || got.AnswerText == nil || *got.AnswerText != "Lambda runs code without servers." {
			t.Fatalf("final record: got=%+v", got)
		}
		if len(got.Sources) != 1 || got.Sources[0] != "a.pdf:0:0" {
			t.Fatalf("sources: got=%v", got.Sources)
		}
		if !got.TTL.Equal(q.TTL) {
			t.Fatalf("ttl changed: want=%v got=%v", q.TTL, got.TTL)
		}

		ok, err = s.repo.Claim(dbc(), "q1", time.Minute)
		if err != nil || ok {
			t.Fatalf("terminal claim: ok=%v err=%v", ok, err)
		}
		ok, err = s.repo.Claim(dbc(), "missing", time.Minute)
		if err != nil || ok {
			t.Fatalf("missing claim: ok=%v err=%v", ok, err)
		}
	})
}

func TestQueryRepoFinalizeFailure(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		q := testutil.NewQuery("q1", "u", time.Now().UTC())
		if err := s.repo.Put(dbc(), q); err != nil {
			t.Fatalf("Put: %v", err)
		}
		q.Fail("retrieval unavailable")
		if written, err := s.repo.Finalize(dbc(), q); err != nil || !written {
			t.Fatalf("Finalize: written=%v err=%v", written, err)
		}
		got, err := s.repo.Get(dbc(), "q1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != query.StatusFailed || got.IsComplete || got.AnswerText != nil {
			t.Fatalf("failed record: got=%+v", got)
		}
		if got.FailureReason == nil || *got.FailureReason != "retrieval unavailable" {
			t.Fatalf("failure reason: got=%v", got.FailureReason)
		}
	})
}

func TestQueryRepoExpiry(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		created := time.Now().UTC()
		if err := s.repo.Put(dbc(), testutil.NewQuery("old", "u", created)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		later := created.AddDate(0, 7, 0)
		s.setNow(func() time.Time { return later })

		if _, err := s.repo.Get(dbc(), "old"); !errors.Is(err, pkgerrors.ErrNotFound) {
			t.Fatalf("expired get: want ErrNotFound got=%v", err)
		}
		got, err := s.repo.ListByUser(dbc(), "u", 25)
		if err != nil || len(got) != 0 {
			t.Fatalf("expired list: got=%v err=%v", idsOf(got), err)
		}
		n, err := s.repo.DeleteExpired(dbc(), later)
		if err != nil {
			t.Fatalf("DeleteExpired: %v", err)
		}
		if n != 1 {
			t.Fatalf("deleted: want=1 got=%d", n)
		}
	})
}

func idsOf(qs []*query.Query) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.QueryID)
	}
	return out
}
