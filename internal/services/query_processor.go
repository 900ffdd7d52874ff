package services

import (
	"context"
	"errors"
	"time"

	"github.com/marr05/RAG-TO-AWS/internal/data/repos/queries"
	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
	"github.com/marr05/RAG-TO-AWS/internal/pkg/dbctx"
	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

// QueryProcessor runs retrieval and generation for one in-flight record and writes the outcome.
type QueryProcessor interface {
	Answer(ctx context.Context, question string) (rag.Answer, error)
	// Process claims the record, answers it and finalizes it as complete or failed. A record
	// that is terminal or held by another worker is returned unchanged with a nil error.
	Process(ctx context.Context, q *query.Query) (*query.Query, error)
}

type queryProcessor struct {
	log       *logger.Logger
	repo      queries.QueryRepo
	retriever Retriever
	generator Generator
	lease     time.Duration
}

func NewQueryProcessor(baseLog *logger.Logger, repo queries.QueryRepo, retriever Retriever, generator Generator, lease time.Duration) QueryProcessor {
	if lease <= 0 {
		lease = queries.DefaultLease
	}
	return &queryProcessor{
		log:       baseLog.With("service", "QueryProcessor"),
		repo:      repo,
		retriever: retriever,
		generator: generator,
		lease:     lease,
	}
}

func (p *queryProcessor) Answer(ctx context.Context, question string) (rag.Answer, error) {
	prompt, err := p.retriever.BuildPrompt(ctx, question)
	if err != nil {
		return rag.Answer{}, err
	}
	text, err := p.generator.Generate(ctx, prompt.Text)
	if err != nil {
		return rag.Answer{}, err
	}
	return rag.Answer{Text: text, Sources: prompt.SourceIDs}, nil
}

func (p *queryProcessor) Process(ctx context.Context, q *query.Query) (*query.Query, error) {
	dbc := dbctx.Context{Ctx: ctx}
	claimed, err := p.repo.Claim(dbc, q.QueryID, p.lease)
	if err != nil {
		return nil, err
	}
	if !claimed {
		p.log.Info("Query already claimed or finished, skipping", "query_id", q.QueryID)
		current, err := p.repo.Get(dbc, q.QueryID)
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return q, nil
		}
		return current, err
	}

	answer, runErr := p.Answer(ctx, q.QueryText)
	if runErr != nil {
		q.Fail(failureReason(runErr))
		p.log.Warn("Query failed", "query_id", q.QueryID, "reason", *q.FailureReason, "error", runErr)
	} else {
		q.Complete(answer.Text, answer.Sources)
	}

	if _, err := p.repo.Finalize(dbc, q); err != nil {
		p.log.Error("Failed to persist query outcome", "query_id", q.QueryID, "status", q.Status, "error", err)
		return q, err
	}
	if runErr != nil {
		return q, runErr
	}
	p.log.Info("Query processed", "query_id", q.QueryID, "sources", len(answer.Sources))
	return q, nil
}

// failureReason is the short, client-safe description stored on failed records.
func failureReason(err error) string {
	switch {
	case errors.Is(err, pkgerrors.ErrRetrievalUnavailable):
		return "retrieval unavailable"
	case errors.Is(err, pkgerrors.ErrGenerationUnavailable):
		return "generation unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return "internal error"
	}
}
