package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/codes"

	"github.com/marr05/RAG-TO-AWS/internal/observability"
	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

// SystemInstruction keeps the model on the retrieved context and names the fallback reply.
const SystemInstruction = "Answer the question using only the provided context. " +
	"If the context is empty or does not contain the answer, reply exactly with: " + FallbackAnswer

type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type generator struct {
	log   *logger.Logger
	model Completer
}

func NewGenerator(baseLog *logger.Logger, model Completer) Generator {
	return &generator{
		log:   baseLog.With("service", "Generator"),
		model: model,
	}
}

// Generate makes a single blocking model call. Retries are left to the transport.
func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := observability.Tracer().Start(ctx, "generator.generate")
	defer span.End()

	text, err := g.model.Complete(ctx, SystemInstruction, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", pkgerrors.Tag(pkgerrors.ErrGenerationUnavailable, err)
	}
	return strings.TrimSpace(text), nil
}
