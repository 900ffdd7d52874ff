package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/marr05/RAG-TO-AWS/internal/data/repos/queries"
	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/observability"
	"github.com/marr05/RAG-TO-AWS/internal/pkg/dbctx"
	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

const (
	DefaultRetentionMonths = 6
	DefaultQueryCharLimit  = 2000
	DefaultListLimit       = 25
	DefaultUserID          = "anonymous"
)

// Dispatcher hands an in-flight record to a worker as a one-way message.
type Dispatcher interface {
	Dispatch(ctx context.Context, q *query.Query) error
}

type QueryServiceConfig struct {
	RetentionMonths int
	QueryCharLimit  int
	ListLimit       int
}

func (c QueryServiceConfig) withDefaults() QueryServiceConfig {
	if c.RetentionMonths <= 0 {
		c.RetentionMonths = DefaultRetentionMonths
	}
	if c.QueryCharLimit <= 0 {
		c.QueryCharLimit = DefaultQueryCharLimit
	}
	if c.ListLimit <= 0 {
		c.ListLimit = DefaultListLimit
	}
	return c
}

type QueryService interface {
	// Submit validates and persists a new record, then processes it inline or dispatches it.
	// In inline mode a processing failure is returned together with the failed record.
	Submit(ctx context.Context, queryText, userID string) (*query.Query, error)
	Get(ctx context.Context, queryID string) (*query.Query, error)
	List(ctx context.Context, userID string) ([]*query.Query, error)
}

type queryService struct {
	log        *logger.Logger
	cfg        QueryServiceConfig
	repo       queries.QueryRepo
	processor  QueryProcessor
	dispatcher Dispatcher
	now        func() time.Time
	newID      func() string
}

// NewQueryService wires the submission path. A nil dispatcher selects inline processing.
func NewQueryService(baseLog *logger.Logger, cfg QueryServiceConfig, repo queries.QueryRepo, processor QueryProcessor, dispatcher Dispatcher) QueryService {
	return &queryService{
		log:        baseLog.With("service", "QueryService"),
		cfg:        cfg.withDefaults(),
		repo:       repo,
		processor:  processor,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

func (s *queryService) Submit(ctx context.Context, queryText, userID string) (*query.Query, error) {
	ctx, span := observability.Tracer().Start(ctx, "query.submit")
	defer span.End()

	if strings.TrimSpace(queryText) == "" {
		return nil, pkgerrors.Tag(pkgerrors.ErrValidation, fmt.Errorf("query_text is required"))
	}
	if n := utf8.RuneCountInString(queryText); n > s.cfg.QueryCharLimit {
		return nil, pkgerrors.Tag(pkgerrors.ErrValidation,
			fmt.Errorf("query_text has %d characters, limit is %d", n, s.cfg.QueryCharLimit))
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = DefaultUserID
	}

	created := s.now().UTC().Truncate(time.Microsecond)
	q := &query.Query{
		QueryID:     s.newID(),
		UserID:      userID,
		CreatedTime: created,
		TTL:         created.AddDate(0, s.cfg.RetentionMonths, 0).Truncate(time.Second),
		QueryText:   queryText,
		Status:      query.StatusProcessing,
		UpdatedAt:   created,
	}
	q.Normalize()
	span.SetAttributes(attribute.String("query.id", q.QueryID))

	if err := s.repo.Put(dbctx.Context{Ctx: ctx}, q); err != nil {
		s.log.Error("Failed to persist submitted query", "query_id", q.QueryID, "error", err)
		return nil, err
	}

	if s.dispatcher == nil {
		return s.processor.Process(ctx, q)
	}
	if err := s.dispatcher.Dispatch(ctx, q); err != nil {
		s.log.Error("Query hand-off failed; record left in processing", "query_id", q.QueryID, "error", err)
		return q, pkgerrors.Tag(pkgerrors.ErrDispatchFailure, err)
	}
	s.log.Info("Query dispatched", "query_id", q.QueryID, "user_id", userID)
	return q, nil
}

func (s *queryService) Get(ctx context.Context, queryID string) (*query.Query, error) {
	queryID = strings.TrimSpace(queryID)
	if queryID == "" {
		return nil, pkgerrors.Tag(pkgerrors.ErrValidation, fmt.Errorf("query_id is required"))
	}
	return s.repo.Get(dbctx.Context{Ctx: ctx}, queryID)
}

func (s *queryService) List(ctx context.Context, userID string) ([]*query.Query, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = DefaultUserID
	}
	return s.repo.ListByUser(dbctx.Context{Ctx: ctx}, userID, s.cfg.ListLimit)
}
