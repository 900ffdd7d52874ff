package queryrun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

// PayloadHandler decodes and processes one message body.
type PayloadHandler interface {
	Handle(ctx context.Context, body []byte) error
}

type Activities struct {
	Log     *logger.Logger
	Handler PayloadHandler
}

func (a *Activities) Process(ctx context.Context, payload string) error {
	if a == nil || a.Handler == nil {
		return fmt.Errorf("queryrun: activity not configured")
	}
	stop := startHeartbeat(ctx)
	defer stop()

	err := a.Handler.Handle(ctx, []byte(payload))
	if errors.Is(err, pkgerrors.ErrDecode) {
		if a.Log != nil {
			a.Log.Warn("Rejecting undecodable payload", "error", err)
		}
		return temporal.NewNonRetryableApplicationError(err.Error(), "decode", err)
	}
	return err
}

func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
