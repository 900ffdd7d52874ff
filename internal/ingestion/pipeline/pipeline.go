// Package pipeline loads, splits and indexes the corpus.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
	"github.com/marr05/RAG-TO-AWS/internal/ingestion/chunker"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
	"github.com/marr05/RAG-TO-AWS/internal/services"
)

// DocumentLoader reads a location into per-page documents.
type DocumentLoader interface {
	Load(ctx context.Context, location string) ([]rag.Document, error)
}

type Result struct {
	Documents int
	Chunks    int
	Existing  int
	Added     int
}

type Pipeline struct {
	log      *logger.Logger
	loader   DocumentLoader
	splitter *chunker.Splitter
	index    services.CorpusIndex
	out      io.Writer
}

// New builds a pipeline; progress lines go to out (io.Discard when nil).
func New(baseLog *logger.Logger, loader DocumentLoader, splitter *chunker.Splitter, index services.CorpusIndex, out io.Writer) *Pipeline {
	if splitter == nil {
		splitter = chunker.New()
	}
	if out == nil {
		out = io.Discard
	}
	return &Pipeline{
		log:      baseLog.With("component", "IngestPipeline"),
		loader:   loader,
		splitter: splitter,
		index:    index,
		out:      out,
	}
}

// Run loads location and adds every chunk whose id is not yet indexed.
func (p *Pipeline) Run(ctx context.Context, location string) (Result, error) {
	docs, err := p.loader.Load(ctx, location)
	if err != nil {
		return Result{}, err
	}
	return p.Ingest(ctx, docs)
}

// Ingest splits docs, assigns ids and upserts the new chunks. Re-running on unchanged input adds nothing.
func (p *Pipeline) Ingest(ctx context.Context, docs []rag.Document) (Result, error) {
	chunks := chunker.AssignIDs(p.splitter.Split(docs))
	res := Result{Documents: len(docs), Chunks: len(chunks)}

	existing, err := p.index.ExistingIDs(ctx)
	if err != nil {
		return res, err
	}
	res.Existing = len(existing)
	fmt.Fprintf(p.out, "Number of existing documents in DB: %d\n", res.Existing)

	var fresh []rag.Chunk
	for _, c := range chunks {
		if _, ok := existing[c.ID]; !ok {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		fmt.Fprintln(p.out, "No new documents to add.")
		return res, nil
	}

	fmt.Fprintf(p.out, "Adding new documents: %d\n", len(fresh))
	added, err := p.index.Upsert(ctx, fresh)
	res.Added = added
	if err != nil {
		p.log.Error("Corpus upsert incomplete", "added", added, "wanted", len(fresh), "error", err)
		return res, err
	}
	p.log.Info("Corpus updated", "documents", res.Documents, "chunks", res.Chunks, "added", added)
	return res, nil
}

// Reset empties the corpus index.
func (p *Pipeline) Reset(ctx context.Context) error {
	fmt.Fprintln(p.out, "Clearing Database")
	return p.index.Reset(ctx)
}
