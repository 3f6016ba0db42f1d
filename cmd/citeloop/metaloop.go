package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/logging"
	"github.com/danielpatrickdp/citeloop/internal/metaloop"
	"github.com/danielpatrickdp/citeloop/internal/refinement"
)

func newMetaloopCmd() *cobra.Command {
	var (
		errorsDir   string
		corrections string
		strategy    string
		out         string
		minDelta    float64
		allowSame   bool
		evaluate    bool
	)
	cmd := &cobra.Command{
		Use:   "metaloop",
		Short: "Turn logged errors and accepted corrections into training pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if errorsDir == "" {
				errorsDir = cfg.Paths.ErrorsDir
			}
			if corrections == "" {
				corrections = cfg.Paths.Corrections
			}
			st, err := metaloop.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			storage, err := logging.NewStorage(errorsDir)
			if err != nil {
				return err
			}
			errs, err := storage.Load("")
			if err != nil {
				return err
			}
			props, err := refinement.LoadCorrections(corrections)
			if err != nil {
				return err
			}

			var cl closers
			defer cl.close()
			var trainer metaloop.Trainer
			if evaluate {
				engine, err := newEngine(cfg, "", &cl)
				if err != nil {
					return err
				}
				decoding, err := decoder.ParseStrategy(cfg.Model.Decoding)
				if err != nil {
					return err
				}
				trainer = metaloop.EngineEvaluator{Engine: engine, Decoding: decoding}
			}

			// records are already in the log, so the loop does not re-log them
			loop := metaloop.NewLoop(nil, metaloop.Generator{
				Filter:   metaloop.PairFilter{MinConfidenceDelta: minDelta, RequireLabelFlip: !allowSame},
				Strategy: st,
			}, trainer, logger)
			pairs, metrics, err := loop.Run(cmd.Context(), errs, props)
			if err != nil {
				return err
			}
			if err := metaloop.ExportJSONL(pairs, out); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d errors, %d corrections -> %d %s pairs in %s\n", len(errs), len(props), len(pairs), st, out)
			for k, v := range metrics {
				fmt.Fprintf(w, "  %s: %.4f\n", k, v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&errorsDir, "errors-dir", "", "error log directory (default from config)")
	cmd.Flags().StringVar(&corrections, "corrections", "", "corrections JSONL (default from config)")
	cmd.Flags().StringVar(&strategy, "strategy", "direct", "pair strategy: direct, qa, contrastive")
	cmd.Flags().StringVar(&out, "out", "data/training/pairs.jsonl", "output JSONL")
	cmd.Flags().Float64Var(&minDelta, "min-delta", 0, "minimum confidence gain")
	cmd.Flags().BoolVar(&allowSame, "allow-same-label", false, "keep pairs whose corrected label equals the prediction")
	cmd.Flags().BoolVar(&evaluate, "evaluate", false, "score the configured model on the pairs")
	return cmd
}
