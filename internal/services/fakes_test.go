package services

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
)

// memStore is an in-memory VectorStore ranking by dot product.
type memStore struct {
	mu     sync.Mutex
	chunks []rag.EmbeddedChunk
	err    error
}

func (m *memStore) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]struct{}{}
	for _, c := range m.chunks {
		out[c.ID] = struct{}{}
	}
	return out, nil
}

func (m *memStore) Upsert(ctx context.Context, chunks []rag.EmbeddedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memStore) Search(ctx context.Context, vector []float32, k int) ([]rag.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]rag.Match, 0, len(m.chunks))
	for _, c := range m.chunks {
		var dot float64
		for i := range vector {
			if i < len(c.Vector) {
				dot += float64(vector[i]) * float64(c.Vector[i])
			}
		}
		out = append(out, rag.Match{Chunk: c.Chunk, Score: dot})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = nil
	return nil
}

// wordEmbedder hashes lower-cased words into a small bag-of-words vector.
type wordEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn int
}

var errEmbedDown = errors.New("embedding service down")

func (e *wordEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.failOn > 0 && call >= e.failOn {
		return nil, errEmbedDown
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		vec := make([]float32, 16)
		for _, w := range strings.Fields(strings.ToLower(in)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(w, ".,?!")))
			vec[h.Sum32()%16]++
		}
		out[i] = vec
	}
	return out, nil
}

func (e *wordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// echoCompleter returns the context block of the prompt, or the fallback sentence when it is empty.
type echoCompleter struct {
	mu      sync.Mutex
	prompts []string
	system  string
	err     error
}

func (c *echoCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, user)
	c.system = system
	c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	body := strings.TrimPrefix(user, "Context:\n")
	contextBlock, _, _ := strings.Cut(body, "\n---\nQuestion: ")
	if contextBlock == "" {
		return FallbackAnswer, nil
	}
	return contextBlock, nil
}

func (c *echoCompleter) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.prompts...)
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, q *query.Query) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, q.QueryID)
	return nil
}
