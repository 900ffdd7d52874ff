package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marr05/RAG-TO-AWS/internal/app"
	"github.com/marr05/RAG-TO-AWS/internal/ingestion/loader"
	"github.com/marr05/RAG-TO-AWS/internal/ingestion/pipeline"
	"github.com/marr05/RAG-TO-AWS/internal/platform/gcp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&ingestCommands{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "populate:", err)
		os.Exit(1)
	}
}

type ingestCommands struct{}

func (ingestCommands) Populate(ctx context.Context, opts options) error {
	a, err := app.New(ctx, app.RoleIngest)
	if err != nil {
		return err
	}
	defer a.Close()

	var objects loader.ObjectReader
	if gcp.IsURI(opts.data) {
		if opts.watch {
			return fmt.Errorf("--watch needs a local directory, got %s", opts.data)
		}
		cfg, err := gcp.StorageConfigFromEnv()
		if err != nil {
			return err
		}
		src, err := gcp.NewObjectSource(ctx, a.Log, cfg)
		if err != nil {
			return err
		}
		defer src.Close()
		objects = src
	}

	p := pipeline.New(a.Log, loader.New(a.Log, objects), a.Splitter, a.Index, os.Stdout)
	if opts.reset {
		if err := p.Reset(ctx); err != nil {
			return err
		}
	}
	if _, err := p.Run(ctx, opts.data); err != nil {
		return err
	}
	if opts.watch {
		return p.Watch(ctx, opts.data, opts.debounce)
	}
	return nil
}

func (ingestCommands) Clear(ctx context.Context) error {
	a, err := app.New(ctx, app.RoleIngest)
	if err != nil {
		return err
	}
	defer a.Close()
	return pipeline.New(a.Log, nil, a.Splitter, a.Index, os.Stdout).Reset(ctx)
}
