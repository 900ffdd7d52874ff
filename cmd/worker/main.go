package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marr05/RAG-TO-AWS/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.RoleWorker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init worker: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Log.Info("Worker starting", "dispatch_mode", a.Cfg.DispatchMode, "concurrency", a.Cfg.WorkerConcurrency)
	if err := a.RunWorker(ctx); err != nil {
		a.Log.Error("Worker stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
	a.Log.Info("Worker stopped")
}
