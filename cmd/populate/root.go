package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/marr05/RAG-TO-AWS/internal/ingestion/pipeline"
	"github.com/marr05/RAG-TO-AWS/internal/platform/envutil"
)

type options struct {
	data     string
	reset    bool
	watch    bool
	debounce time.Duration
}

// commands is the work behind the CLI; main binds it to the wired ingestion pipeline.
type commands interface {
	Populate(ctx context.Context, opts options) error
	Clear(ctx context.Context) error
}

func newRootCmd(cmds commands) *cobra.Command {
	opts := options{}

	root := &cobra.Command{
		Use:   "populate",
		Short: "Load documents into the corpus index",
		Long: `Reads PDF, text and markdown files from a local directory or a gs://bucket/prefix,
splits them into chunks and adds the chunks the index does not have yet.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Populate(cmd.Context(), opts)
		},
	}
	root.Flags().StringVarP(&opts.data, "data", "d", envutil.String("DATA_PATH", "data"), "Directory or gs:// prefix to ingest")
	root.Flags().BoolVar(&opts.reset, "reset", false, "Clear the index before ingesting")
	root.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep running and re-ingest when files in --data change")
	root.Flags().DurationVar(&opts.debounce, "debounce", pipeline.DefaultDebounce, "Quiet period before a watched change is ingested")

	root.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every chunk from the corpus index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Clear(cmd.Context())
		},
	})
	return root
}
