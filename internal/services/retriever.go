package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
	"github.com/marr05/RAG-TO-AWS/internal/observability"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

const (
	DefaultRetrievalK = 3

	// ContextDelimiter separates retrieved chunk texts inside the context block.
	ContextDelimiter = "\n---------\n"

	PromptTemplate = "Context:\n{context}\n---\nQuestion: {question}\nDetailed Answer:"

	FallbackAnswer = "I don't have enough information in the provided documents to answer this question, would you like me to answer from my general knowledge?"
)

// RenderPrompt fills the prompt template. Placeholders are substituted once, context first,
// so braces inside the question are left alone.
func RenderPrompt(contextBlock, question string) string {
	head, tail, _ := strings.Cut(PromptTemplate, "{context}")
	tail = strings.Replace(tail, "{question}", question, 1)
	return head + contextBlock + tail
}

type Retriever interface {
	BuildPrompt(ctx context.Context, question string) (rag.Prompt, error)
}

type retriever struct {
	log   *logger.Logger
	index CorpusIndex
	k     int
}

func NewRetriever(baseLog *logger.Logger, index CorpusIndex, k int) Retriever {
	if k <= 0 {
		k = DefaultRetrievalK
	}
	return &retriever{
		log:   baseLog.With("service", "Retriever"),
		index: index,
		k:     k,
	}
}

func (r *retriever) BuildPrompt(ctx context.Context, question string) (rag.Prompt, error) {
	ctx, span := observability.Tracer().Start(ctx, "retriever.build_prompt")
	defer span.End()

	matches, err := r.index.Query(ctx, question, r.k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return rag.Prompt{}, err
	}

	texts := make([]string, 0, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Chunk.Text)
		ids = append(ids, m.Chunk.ID)
	}
	contextBlock := strings.Join(texts, ContextDelimiter)
	span.SetAttributes(attribute.Int("rag.matches", len(matches)))
	r.log.Debug("Prompt assembled", "matches", len(matches), "sources", ids)

	return rag.Prompt{
		Text:      RenderPrompt(contextBlock, question),
		Context:   contextBlock,
		SourceIDs: ids,
	}, nil
}
