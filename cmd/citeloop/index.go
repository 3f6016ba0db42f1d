package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/citeloop/internal/retrieval"
)

func newIndexCmd() *cobra.Command {
	var input, backend, out string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Encode labelled context units into vector memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if backend != "" {
				cfg.Retrieval.Backend = backend
			}
			if out != "" {
				cfg.Retrieval.IndexPath = out
			}
			metric, err := retrieval.ParseMetric(cfg.Retrieval.Metric)
			if err != nil {
				return err
			}

			var cl closers
			defer cl.close()
			enc, err := newEncoder(ctx, cfg, &cl)
			if err != nil {
				return err
			}
			store, err := newIndexStorage(ctx, cfg, &cl)
			if err != nil {
				return err
			}

			builder := retrieval.NewMemoryBuilder(enc, metric, logger)
			units, err := builder.LoadLabeledUnits(input)
			if err != nil {
				return err
			}
			n, err := builder.BuildAndSave(ctx, units, store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d units into %s (%s)\n", n, cfg.Retrieval.IndexPath, cfg.Retrieval.Backend)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "labelled context units JSONL")
	cmd.Flags().StringVar(&backend, "backend", "", "file, sqlite or s3 (default from config)")
	cmd.Flags().StringVar(&out, "out", "", "index path (file and sqlite backends)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
