package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/logging"
	"github.com/danielpatrickdp/citeloop/internal/orchestrator"
	"github.com/danielpatrickdp/citeloop/internal/perturbation"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
	"github.com/danielpatrickdp/citeloop/internal/refinement"
	"github.com/danielpatrickdp/citeloop/internal/submission"
)

// #region flags
type runFlags struct {
	input      string
	model      string
	reask      bool
	output     string
	report     string
	saveErrors string
	perturb    bool
	strategy   string
	threshold  float64
	fixture    string
	maxTokens  int
	noMemory   bool
}

// #endregion flags

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify context units and write predictions plus a submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.input, "input", "", "context units JSONL")
	cmd.Flags().StringVar(&f.model, "model", "", "model name (llama3, mixtral, openai:gpt-4o-mini, ...)")
	cmd.Flags().BoolVar(&f.reask, "reask", false, "refine uncertain predictions with self-questions")
	cmd.Flags().StringVar(&f.output, "output", "", "submission CSV path")
	cmd.Flags().StringVar(&f.report, "report", "", "submission validation report path")
	cmd.Flags().StringVar(&f.saveErrors, "save-errors", "", "error log directory")
	cmd.Flags().BoolVar(&f.perturb, "perturb", false, "run the perturbation consistency test")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "classification strategy: default, few_shot, cot, logit, auto")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "review threshold (0 uses config)")
	cmd.Flags().StringVar(&f.fixture, "replay", "", "serve model outputs from a replay fixture")
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "reject units above this token count")
	cmd.Flags().BoolVar(&f.noMemory, "no-retrieval", false, "skip vector memory for few-shot exemplars")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// #region run
func runPipeline(cmd *cobra.Command, f runFlags) error {
	ctx := cmd.Context()
	if f.model != "" {
		cfg.Model.Name = f.model
	}
	if f.saveErrors != "" {
		cfg.Paths.ErrorsDir = f.saveErrors
	}
	if f.output != "" {
		cfg.Paths.Submission = f.output
	}
	if f.report != "" {
		cfg.Paths.Report = f.report
	}
	if f.strategy != "" {
		cfg.Pipeline.Strategy = f.strategy
	}
	if f.threshold > 0 {
		cfg.Pipeline.Threshold = f.threshold
	}
	if cmd.Flags().Changed("reask") {
		cfg.Pipeline.Reask = f.reask
	}
	if cmd.Flags().Changed("perturb") {
		cfg.Pipeline.Perturb = f.perturb
	}

	units, lineErrs, err := prediction.LoadContextUnits(f.input, f.maxTokens)
	if err != nil {
		return err
	}
	for _, le := range lineErrs {
		logger.Warn("context unit rejected", zap.String("input", f.input), zap.Error(le))
	}

	var cl closers
	defer cl.close()

	db, err := openDB(cfg.Paths.OutcomeDB, &cl)
	if err != nil {
		return err
	}
	if err := logging.EnsureMirror(db); err != nil {
		return err
	}
	storage, err := logging.NewStorage(cfg.Paths.ErrorsDir)
	if err != nil {
		return err
	}
	errLog := logging.NewErrorLogger(storage, db, logger)
	memory, err := orchestrator.NewOutcomeMemory(db)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg, f.fixture, &cl)
	if err != nil {
		return err
	}

	var tester *perturbation.Tester
	if cfg.Pipeline.Perturb {
		tester = perturbation.NewTester(engine, cfg.PerturbGenerator(), cfg.Consistency(), logger)
	}
	controller := orchestrator.NewController(engine, tester, errLog, cfg.Pipeline.Threshold, logger)

	deps := orchestrator.PipelineDeps{
		Controller: controller,
		Errors:     errLog,
		Memory:     memory,
		Writer:     submission.NewWriter(logger),
	}
	if cfg.Pipeline.Reask {
		corrLog, err := refinement.NewCorrectionLog(cfg.Paths.Corrections)
		if err != nil {
			return err
		}
		decoding, err := decoder.ParseStrategy(cfg.Model.Decoding)
		if err != nil {
			return err
		}
		corrector := refinement.NewCorrector(engine, refinement.CorrectorConfig{
			Decoding: decoding,
			Gate:     cfg.GateThresholds(),
		}, corrLog, logger)
		questioner := refinement.NewQuestioner(refinement.QuestionerConfig{TopK: cfg.Pipeline.TopK})
		deps.Refiner = refinement.NewEngine(questioner, corrector, logger)
	}
	if !f.noMemory && f.fixture == "" {
		if r := newRetriever(ctx, cfg, &cl, logger); r != nil {
			deps.Exemplars = r
		}
	}

	pipeline := orchestrator.NewPipeline(orchestrator.PipelineConfig{
		Strategy:       orchestrator.StrategyID(cfg.Pipeline.Strategy),
		Threshold:      cfg.Pipeline.Threshold,
		Refine:         cfg.Pipeline.Reask,
		Perturb:        cfg.Pipeline.Perturb,
		OutputDir:      cfg.Paths.OutputDir,
		SubmissionPath: cfg.Paths.Submission,
		ReportPath:     cfg.Paths.Report,
	}, deps, logger)

	sum, err := pipeline.Run(ctx, units)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d units, %d classified, %d needs review, %d corrected, %d refinement failed, %d skipped\n",
		sum.RunID, sum.Total, sum.Classified, sum.NeedsReview, sum.Corrected, sum.RefinementFailed, sum.Skipped)
	fmt.Fprintf(out, "predictions: %s\n", sum.PredictionsPath)
	if sum.SubmissionPath != "" {
		fmt.Fprintf(out, "submission:  %s\n", sum.SubmissionPath)
	}
	if len(sum.ErrorIDs) > 0 {
		fmt.Fprintf(out, "errors:      %d logged under %s\n", len(sum.ErrorIDs), storage.Dir())
	}
	return nil
}

// #endregion run
