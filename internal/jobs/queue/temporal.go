package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
	"github.com/marr05/RAG-TO-AWS/internal/temporalx/queryrun"
)

// TemporalPublisher starts one workflow per record and returns without waiting for it.
type TemporalPublisher struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewTemporalPublisher(baseLog *logger.Logger, tc temporalsdkclient.Client, taskQueue string) (*TemporalPublisher, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured (TEMPORAL_ADDRESS)")
	}
	taskQueue = strings.TrimSpace(taskQueue)
	if taskQueue == "" {
		return nil, fmt.Errorf("temporal task queue is required")
	}
	return &TemporalPublisher{
		log:       baseLog.With("service", "TemporalPublisher"),
		tc:        tc,
		taskQueue: taskQueue,
	}, nil
}

func (p *TemporalPublisher) Dispatch(ctx context.Context, q *query.Query) error {
	body, err := Encode(q)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    queryrun.WorkflowID(q.QueryID),
		TaskQueue:             p.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	_, err = p.tc.ExecuteWorkflow(ctx, opts, queryrun.WorkflowName, string(body))
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			p.log.Info("Workflow already started", "query_id", q.QueryID)
			return nil
		}
		return fmt.Errorf("temporal start workflow: %w", err)
	}
	p.log.Debug("Workflow started", "query_id", q.QueryID, "task_queue", p.taskQueue)
	return nil
}
