package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
	"github.com/marr05/RAG-TO-AWS/internal/platform/ctxutil"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

const (
	payloadChunkIDKey    = "chunk_id"
	payloadSourceKey     = "source"
	payloadPageKey       = "page"
	payloadChunkIndexKey = "chunk_index"
	payloadTextKey       = "text"

	scrollPageSize    = 256
	maxErrorBodyBytes = 1024
	maxResponseBytes  = 32 << 20
)

// Chunk ids are arbitrary strings; Qdrant point ids must be uuids or integers.
var pointIDNamespaceUUID = uuid.MustParse("6f1c3e0a-5d0b-4b6e-9f43-2a7d0c1e8b55")

// VectorStore is the chunk-level surface of a Qdrant collection.
type VectorStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type scrollResult struct {
	Points         []scoredPoint   `json:"points"`
	NextPageOffset json.RawMessage `json:"next_page_offset"`
}

func NewVectorStore(log *logger.Logger, cfg Config) (*VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Distance == "" {
		cfg.Distance = DefaultDistance
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &VectorStore{
		log:     log.With("service", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	if err := s.verifyReady(context.Background()); err != nil {
		return nil, err
	}
	s.log.Info("Qdrant vector store ready", "url", s.baseURL, "collection", cfg.Collection, "vector_dim", cfg.VectorDim, "distance", s.cfg.Distance)
	return s, nil
}

// ExistingIDs pages through the whole collection and returns every stored chunk id.
func (s *VectorStore) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	const op = "scroll"
	out := map[string]struct{}{}
	var offset json.RawMessage
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": []string{payloadChunkIDKey},
			"with_vector":  false,
		}
		if len(offset) > 0 {
			req["offset"] = offset
		}
		var page scrollResult
		if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/scroll"), req, &page); err != nil {
			return nil, err
		}
		for _, p := range page.Points {
			if id := chunkIDFromPayload(p); id != "" {
				out[id] = struct{}{}
			}
		}
		next := strings.TrimSpace(string(page.NextPageOffset))
		if next == "" || next == "null" || len(page.Points) == 0 {
			return out, nil
		}
		offset = page.NextPageOffset
	}
}

// Upsert writes points keyed by a deterministic uuid derived from the chunk id.
func (s *VectorStore) Upsert(ctx context.Context, chunks []rag.EmbeddedChunk) error {
	const op = "upsert"
	if len(chunks) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "chunk id is required", nil)
		}
		if len(c.Vector) != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("chunk %q dimension mismatch: expected=%d got=%d", id, s.cfg.VectorDim, len(c.Vector)), nil)
		}
		points = append(points, map[string]any{
			"id":     PointID(id),
			"vector": c.Vector,
			"payload": map[string]any{
				payloadChunkIDKey:    id,
				payloadSourceKey:     c.Source,
				payloadPageKey:       c.Page,
				payloadChunkIndexKey: c.ChunkIndex,
				payloadTextKey:       c.Text,
			},
		})
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

// Search returns the k nearest chunks, highest score first.
func (s *VectorStore) Search(ctx context.Context, vector []float32, k int) ([]rag.Match, error) {
	const op = "search"
	if len(vector) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(vector)), nil)
	}
	if k <= 0 {
		return []rag.Match{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	var raw []scoredPoint
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, err
	}
	out := make([]rag.Match, 0, len(raw))
	for _, p := range raw {
		c, ok := chunkFromPayload(p)
		if !ok {
			s.log.Warn("qdrant point without chunk payload skipped", "point_id", decodePointID(p.ID))
			continue
		}
		out = append(out, rag.Match{Chunk: c, Score: s.normalizeScore(p.Score)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Reset drops the collection and recreates it empty.
func (s *VectorStore) Reset(ctx context.Context) error {
	if err := s.doJSON(ctx, "delete_collection", http.MethodDelete, s.collectionPath(""), nil, nil); err != nil {
		var oe *OperationError
		if !errors.As(err, &oe) || oe.Code != OperationErrorNotFound {
			return err
		}
	}
	s.log.Info("Qdrant collection dropped", "collection", s.cfg.Collection)
	return s.createCollection(ctx)
}

func (s *VectorStore) createCollection(ctx context.Context) error {
	req := map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorDim,
			"distance": s.cfg.Distance,
		},
	}
	if err := s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(""), req, nil); err != nil {
		return err
	}
	s.log.Info("Qdrant collection created", "collection", s.cfg.Collection, "vector_dim", s.cfg.VectorDim)
	return nil
}

func (s *VectorStore) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"

	readyReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: readyResp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", readyResp.StatusCode),
		}
	}

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err = s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	var oe *OperationError
	if errors.As(err, &oe) && oe.Code == OperationErrorNotFound && s.cfg.AutoCreate {
		return s.createCollection(ctx)
	}
	if err != nil {
		return err
	}
	size := info.Config.Params.Vectors.Size
	if size != 0 && size != s.cfg.VectorDim {
		return &OperationError{
			Code:      OperationErrorValidation,
			Operation: op,
			Message:   fmt.Sprintf("qdrant collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.VectorDim, size),
		}
	}
	if d := strings.TrimSpace(info.Config.Params.Vectors.Distance); d != "" {
		s.cfg.Distance = d
	}
	return nil
}

func (s *VectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode == http.StatusNotFound {
		return &OperationError{
			Code:       OperationErrorNotFound,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    truncateBody(raw),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(env.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

// PointID maps a chunk id onto the uuid Qdrant stores it under.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(chunkID)).String()
}

func (s *VectorStore) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func chunkIDFromPayload(p scoredPoint) string {
	if id, ok := p.Payload[payloadChunkIDKey].(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}

func chunkFromPayload(p scoredPoint) (rag.Chunk, bool) {
	id := chunkIDFromPayload(p)
	if id == "" {
		return rag.Chunk{}, false
	}
	c := rag.Chunk{ID: id}
	c.Source, _ = p.Payload[payloadSourceKey].(string)
	c.Text, _ = p.Payload[payloadTextKey].(string)
	c.Page = intFromPayload(p.Payload[payloadPageKey])
	c.ChunkIndex = intFromPayload(p.Payload[payloadChunkIndexKey])
	return c, true
}

func intFromPayload(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		n, _ := t.Int64()
		return int(n)
	default:
		return 0
	}
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	return strings.TrimSpace(string(raw))
}

func (s *VectorStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.cfg.Distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
