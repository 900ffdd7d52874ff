package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
	"github.com/marr05/RAG-TO-AWS/internal/temporalx"
	"github.com/marr05/RAG-TO-AWS/internal/temporalx/queryrun"
)

type Runner struct {
	log          *logger.Logger
	tc           temporalsdkclient.Client
	cfg          temporalx.Config
	handler      queryrun.PayloadHandler
	concurrency  int
	startMaxWait time.Duration
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, handler queryrun.PayloadHandler, concurrency int) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if handler == nil {
		return nil, fmt.Errorf("temporal worker missing payload handler")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		log:          log.With("component", "TemporalWorker"),
		tc:           tc,
		cfg:          cfg,
		handler:      handler,
		concurrency:  concurrency,
		startMaxWait: 60 * time.Second,
	}, nil
}

// Start polls the task queue until ctx is cancelled. Start failures are retried with backoff.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	deadline := time.Now().Add(r.startMaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		isNotFound := errors.As(startErr, &nfe)
		if isNotFound && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.cfg, r.log); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if time.Now().After(deadline) {
			if isNotFound {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}

		r.log.Warn("Temporal worker failed to start; retrying", "task_queue", r.cfg.TaskQueue, "attempt", attempt, "error", startErr)
		time.Sleep(temporalx.ClampBackoff(250*time.Millisecond, 5*time.Second, attempt))
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.concurrency,
	})
	acts := &queryrun.Activities{Log: r.log, Handler: r.handler}
	w.RegisterWorkflowWithOptions(queryrun.Workflow, workflow.RegisterOptions{Name: queryrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Process, activity.RegisterOptions{Name: queryrun.ActivityProcess})
	return w
}
