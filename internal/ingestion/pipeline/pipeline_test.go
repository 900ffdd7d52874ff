package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marr05/RAG-TO-AWS/internal/data/repos/chunks"
	"github.com/marr05/RAG-TO-AWS/internal/data/repos/testutil"
	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
	"github.com/marr05/RAG-TO-AWS/internal/ingestion/chunker"
	"github.com/marr05/RAG-TO-AWS/internal/ingestion/loader"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
	"github.com/marr05/RAG-TO-AWS/internal/services"
)

type lengthEmbedder struct{}

func (lengthEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = []float32{float32(len(s)), 1}
	}
	return out, nil
}

func newPipeline(t *testing.T, out *bytes.Buffer) (*Pipeline, services.CorpusIndex) {
	t.Helper()
	log := logger.Nop()
	store := chunks.NewVectorStore(testutil.DB(t), log)
	index := services.NewCorpusIndex(log, store, lengthEmbedder{})
	var w io.Writer
	if out != nil {
		w = out
	}
	return New(log, loader.New(log, nil), chunker.New(), index, w), index
}

func TestIngestIsIdempotent(t *testing.T) {
	var out bytes.Buffer
	p, index := newPipeline(t, &out)
	docs := []rag.Document{
		{Source: "a.pdf", Page: 0, Text: "Lambda functions scale automatically."},
		{Source: "a.pdf", Page: 1, Text: "S3 stores objects."},
	}

	res, err := p.Ingest(context.Background(), docs)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Added != 2 || res.Chunks != 2 {
		t.Fatalf("first run: %+v", res)
	}
	ids, err := index.ExistingIDs(context.Background())
	if err != nil {
		t.Fatalf("ExistingIDs: %v", err)
	}
	for _, id := range []string{"a.pdf:0:0", "a.pdf:1:0"} {
		if _, ok := ids[id]; !ok {
			t.Fatalf("missing %q in %v", id, ids)
		}
	}

	out.Reset()
	res, err = p.Ingest(context.Background(), docs)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if res.Added != 0 || res.Existing != 2 {
		t.Fatalf("second run: %+v", res)
	}
	if !strings.Contains(out.String(), "No new documents to add.") {
		t.Fatalf("output: got=%q", out.String())
	}
}

func TestIngestAddsOnlyNewChunks(t *testing.T) {
	var out bytes.Buffer
	p, _ := newPipeline(t, &out)
	first := []rag.Document{{Source: "a.txt", Page: 0, Text: "alpha"}}
	if _, err := p.Ingest(context.Background(), first); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	out.Reset()
	res, err := p.Ingest(context.Background(), append(first, rag.Document{Source: "b.txt", Page: 0, Text: "bravo"}))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Added != 1 {
		t.Fatalf("added: want=1 got=%d", res.Added)
	}
	if !strings.Contains(out.String(), "Adding new documents: 1") {
		t.Fatalf("output: got=%q", out.String())
	}
}

func TestResetClearsIndex(t *testing.T) {
	p, index := newPipeline(t, nil)
	if _, err := p.Ingest(context.Background(), []rag.Document{{Source: "a.txt", Text: "alpha"}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := p.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	ids, err := index.ExistingIDs(context.Background())
	if err != nil {
		t.Fatalf("ExistingIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids after reset: %v", ids)
	}
}

func TestRunLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, _ := newPipeline(t, nil)
	res, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Documents != 1 || res.Added != 1 {
		t.Fatalf("result: %+v", res)
	}
}

func TestWatchReingestsOnWrite(t *testing.T) {
	dir := t.TempDir()
	p, index := newPipeline(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, dir, 50*time.Millisecond) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register the directory.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("fresh content"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		ids, err := index.ExistingIDs(context.Background())
		if err != nil {
			t.Fatalf("ExistingIDs: %v", err)
		}
		if _, ok := ids["new.txt:0:0"]; ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("watch did not ingest new.txt, ids=%v", ids)
		}
		time.Sleep(25 * time.Millisecond)
	}
}
