package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

const (
	defaultEmbedBatchSize   = 64
	defaultEmbedConcurrency = 4
)

// VectorStore is the persistence side of the corpus index (Qdrant or the local SQL table).
type VectorStore interface {
	ExistingIDs(ctx context.Context) (map[string]struct{}, error)
	Upsert(ctx context.Context, chunks []rag.EmbeddedChunk) error
	Search(ctx context.Context, vector []float32, k int) ([]rag.Match, error)
	Reset(ctx context.Context) error
}

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type CorpusIndex interface {
	ExistingIDs(ctx context.Context) (map[string]struct{}, error)
	// Upsert embeds and stores chunks whose id is not indexed yet and returns how many were added.
	// It is not atomic: on error some batches may already be stored. Retrying is safe.
	Upsert(ctx context.Context, chunks []rag.Chunk) (int, error)
	Query(ctx context.Context, text string, k int) ([]rag.Match, error)
	Reset(ctx context.Context) error
}

type corpusIndex struct {
	log         *logger.Logger
	store       VectorStore
	embedder    Embedder
	batchSize   int
	concurrency int
}

func NewCorpusIndex(baseLog *logger.Logger, store VectorStore, embedder Embedder) CorpusIndex {
	return &corpusIndex{
		log:         baseLog.With("service", "CorpusIndex"),
		store:       store,
		embedder:    embedder,
		batchSize:   defaultEmbedBatchSize,
		concurrency: defaultEmbedConcurrency,
	}
}

func (c *corpusIndex) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	ids, err := c.store.ExistingIDs(ctx)
	if err != nil {
		return nil, pkgerrors.Tag(pkgerrors.ErrRetrievalUnavailable, err)
	}
	return ids, nil
}

func (c *corpusIndex) Upsert(ctx context.Context, chunks []rag.Chunk) (int, error) {
	existing, err := c.ExistingIDs(ctx)
	if err != nil {
		return 0, err
	}
	c.log.Info("Number of existing chunks in index", "count", len(existing))

	fresh := make([]rag.Chunk, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, ch := range chunks {
		if ch.ID == "" {
			return 0, fmt.Errorf("chunk without id (source=%s page=%d)", ch.Source, ch.Page)
		}
		if _, ok := existing[ch.ID]; ok {
			continue
		}
		if _, ok := seen[ch.ID]; ok {
			continue
		}
		seen[ch.ID] = struct{}{}
		fresh = append(fresh, ch)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	c.log.Info("Adding new chunks", "count", len(fresh))

	var added atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(fresh); start += c.batchSize {
		end := start + c.batchSize
		if end > len(fresh) {
			end = len(fresh)
		}
		batch := fresh[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, ch := range batch {
				texts[i] = ch.Text
			}
			vectors, err := c.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embed chunks: want %d vectors got %d", len(batch), len(vectors))
			}
			out := make([]rag.EmbeddedChunk, len(batch))
			for i, ch := range batch {
				out[i] = rag.EmbeddedChunk{Chunk: ch, Vector: vectors[i]}
			}
			if err := c.store.Upsert(gctx, out); err != nil {
				return fmt.Errorf("store chunks: %w", err)
			}
			added.Add(int64(len(out)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Warn("Chunk upsert stopped early", "added", added.Load(), "pending", len(fresh), "error", err)
		return int(added.Load()), pkgerrors.Tag(pkgerrors.ErrRetrievalUnavailable, err)
	}
	return int(added.Load()), nil
}

func (c *corpusIndex) Query(ctx context.Context, text string, k int) ([]rag.Match, error) {
	if k <= 0 {
		return []rag.Match{}, nil
	}
	vectors, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, pkgerrors.Tag(pkgerrors.ErrRetrievalUnavailable, fmt.Errorf("embed query: %w", err))
	}
	if len(vectors) != 1 {
		return nil, pkgerrors.Tag(pkgerrors.ErrRetrievalUnavailable, fmt.Errorf("embed query: got %d vectors", len(vectors)))
	}
	matches, err := c.store.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, pkgerrors.Tag(pkgerrors.ErrRetrievalUnavailable, fmt.Errorf("search index: %w", err))
	}
	return matches, nil
}

func (c *corpusIndex) Reset(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return pkgerrors.Tag(pkgerrors.ErrRetrievalUnavailable, err)
	}
	c.log.Info("Corpus index cleared")
	return nil
}
