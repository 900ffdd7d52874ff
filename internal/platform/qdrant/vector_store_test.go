package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/docs/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/docs/points", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	err := s.Upsert(context.Background(), []rag.EmbeddedChunk{
		{Chunk: rag.Chunk{ID: "a.pdf:0:0", Source: "a.pdf", Page: 0, ChunkIndex: 0, Text: "Lambda functions scale automatically."}, Vector: []float32{1, 0, 0}},
		{Chunk: rag.Chunk{ID: "a.pdf:0:1", Source: "a.pdf", Page: 0, ChunkIndex: 1, Text: "second"}, Vector: []float32{0, 1, 0}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	points, ok := captured["points"].([]any)
	if !ok || len(points) != 2 {
		t.Fatalf("points: want 2 got=%v", captured["points"])
	}
	first := points[0].(map[string]any)
	if first["id"] != PointID("a.pdf:0:0") {
		t.Fatalf("point id: want=%q got=%v", PointID("a.pdf:0:0"), first["id"])
	}
	payload := first["payload"].(map[string]any)
	if payload[payloadChunkIDKey] != "a.pdf:0:0" {
		t.Fatalf("payload chunk id: want=%q got=%v", "a.pdf:0:0", payload[payloadChunkIDKey])
	}
	if payload[payloadTextKey] != "Lambda functions scale automatically." {
		t.Fatalf("payload text: got=%v", payload[payloadTextKey])
	}
}

func TestVectorStoreUpsertRejectsDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		return nil, nil
	})
	err := s.Upsert(context.Background(), []rag.EmbeddedChunk{
		{Chunk: rag.Chunk{ID: "a.pdf:0:0"}, Vector: []float32{1, 2}},
	})
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorValidation {
		t.Fatalf("expected validation OperationError, got=%v", err)
	}
}

func TestPointIDDeterministic(t *testing.T) {
	if PointID("a.pdf:0:0") != PointID("a.pdf:0:0") {
		t.Fatalf("point id not deterministic")
	}
	if PointID("a.pdf:0:0") == PointID("a.pdf:0:1") {
		t.Fatalf("distinct chunk ids collided")
	}
}

func TestVectorStoreSearchDecodesChunksAndSorts(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/docs/points/search" {
			t.Fatalf("path: want=%q got=%q", "/collections/docs/points/search", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{"id": "p1", "score": 0.2, "payload": map[string]any{"chunk_id": "b.pdf:1:0", "source": "b.pdf", "page": 1, "chunk_index": 0, "text": "low"}},
			{"id": "p2", "score": 0.9, "payload": map[string]any{"chunk_id": "a.pdf:0:0", "source": "a.pdf", "page": 0, "chunk_index": 0, "text": "high"}},
			{"id": "p3", "score": 0.5, "payload": map[string]any{}},
		}), nil
	})

	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if captured["limit"] != float64(3) {
		t.Fatalf("limit: want=3 got=%v", captured["limit"])
	}
	if len(matches) != 2 {
		t.Fatalf("matches: want=2 got=%d", len(matches))
	}
	if matches[0].Chunk.ID != "a.pdf:0:0" || matches[1].Chunk.ID != "b.pdf:1:0" {
		t.Fatalf("order: got=%q,%q", matches[0].Chunk.ID, matches[1].Chunk.ID)
	}
	if matches[1].Chunk.Page != 1 || matches[0].Chunk.Text != "high" {
		t.Fatalf("payload decode: got=%+v", matches)
	}
}

func TestVectorStoreSearchNormalizesEuclid(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, []map[string]any{
			{"id": "p1", "score": 3.0, "payload": map[string]any{"chunk_id": "far"}},
			{"id": "p2", "score": 0.0, "payload": map[string]any{"chunk_id": "near"}},
		}), nil
	})
	s.cfg.Distance = "Euclid"
	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if matches[0].Chunk.ID != "near" || matches[0].Score != 1.0 {
		t.Fatalf("top match: got=%+v", matches[0])
	}
}

func TestVectorStoreExistingIDsPaginates(t *testing.T) {
	calls := 0
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/docs/points/scroll" {
			t.Fatalf("path: want=%q got=%q", "/collections/docs/points/scroll", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		calls++
		switch calls {
		case 1:
			if _, ok := body["offset"]; ok {
				t.Fatalf("first page must not send offset")
			}
			return okResponse(t, map[string]any{
				"points":           []map[string]any{{"id": "u1", "payload": map[string]any{"chunk_id": "a.pdf:0:0"}}},
				"next_page_offset": "u2",
			}), nil
		default:
			if body["offset"] != "u2" {
				t.Fatalf("offset: want=%q got=%v", "u2", body["offset"])
			}
			return okResponse(t, map[string]any{
				"points":           []map[string]any{{"id": "u2", "payload": map[string]any{"chunk_id": "a.pdf:0:1"}}},
				"next_page_offset": nil,
			}), nil
		}
	})

	ids, err := s.ExistingIDs(context.Background())
	if err != nil {
		t.Fatalf("ExistingIDs: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
	for _, id := range []string{"a.pdf:0:0", "a.pdf:0:1"} {
		if _, ok := ids[id]; !ok {
			t.Fatalf("missing id %q in %v", id, ids)
		}
	}
}

func TestVectorStoreResetDropsAndRecreates(t *testing.T) {
	var seen []string
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			return statusResponse(http.StatusNotFound, `{"status":{"error":"Not found"}}`), nil
		}
		return okResponse(t, true), nil
	})
	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	want := []string{"DELETE /collections/docs", "PUT /collections/docs"}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Fatalf("requests: want=%v got=%v", want, seen)
	}
}

func TestVectorStoreHTTPErrorClassified(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusServiceUnavailable, `{"status":{"error":"overloaded"}}`), nil
	})
	_, err := s.Search(context.Background(), []float32{1, 0, 0}, 3)
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if oe.Code != OperationErrorRequestFailed || oe.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("error: got code=%q status=%d", oe.Code, oe.StatusCode)
	}
	if !oe.Retryable() {
		t.Fatalf("503 should be retryable")
	}
}

func TestParseEnvelopeStatusObjectError(t *testing.T) {
	got := parseEnvelopeStatus(json.RawMessage(`{"error":"bad request"}`))
	if got != "bad request" {
		t.Fatalf("status: want=%q got=%q", "bad request", got)
	}
	if parseEnvelopeStatus(json.RawMessage(`"ok"`)) != "" {
		t.Fatalf("ok status should parse as success")
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	err := classifyHTTPCallError("search", "timeout", context.DeadlineExceeded)
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorTimeout {
		t.Fatalf("expected timeout OperationError, got=%v", err)
	}
}

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *VectorStore {
	t.Helper()
	return &VectorStore{
		log:     newTestLogger(t),
		cfg:     Config{URL: "http://qdrant.local", Collection: "docs", VectorDim: 3, Distance: "Cosine"},
		baseURL: "http://qdrant.local",
		http:    &http.Client{Transport: roundTripFunc(roundTrip)},
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return statusResponse(http.StatusOK, string(raw))
}

func statusResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
