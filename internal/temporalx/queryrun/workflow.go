package queryrun

import (
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow runs the process activity once for the encoded record it was started with.
func Workflow(ctx workflow.Context, payload string) error {
	if strings.TrimSpace(payload) == "" {
		return temporal.NewNonRetryableApplicationError("queryrun: empty payload", "decode", nil)
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		// Failures are recorded on the query record; there is no automatic re-run.
		RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	return workflow.ExecuteActivity(ctx, ActivityProcess, payload).Get(ctx, nil)
}
