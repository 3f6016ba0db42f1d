package perturbation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/citeloop/internal/eval"
	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region report

// VariantOutput is one variant's prediction.
type VariantOutput struct {
	PromptVariant string           `json:"prompt_variant"`
	Label         prediction.Label `json:"label"`
	Confidence    float64          `json:"confidence"`
	Error         string           `json:"error,omitempty"`
}

// Report is the outcome of one perturbation test.
type Report struct {
	ContextID            string           `json:"context_id"`
	OriginalLabel        prediction.Label `json:"original_label"`
	PerturbationVariants int              `json:"perturbation_variants"`
	MatchCount           int              `json:"match_count"`
	FailedVariants       int              `json:"failed_variants"`
	InvarianceScore      float64          `json:"invariance_score"`
	AvgConfidenceDrop    float64          `json:"avg_confidence_drop"`
	VariantOutputs       []VariantOutput  `json:"variant_outputs"`
	IsConsistent         bool             `json:"is_consistent"`
}

// WriteJSONL writes one report per line.
func WriteJSONL(w io.Writer, reports []Report) error {
	enc := json.NewEncoder(w)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report %s: %w", r.ContextID, err)
		}
	}
	return nil
}

// #endregion report

// #region tester

// Tester runs the perturbation consistency check.
type Tester struct {
	generator *Generator
	runner    *Runner
	harness   *eval.EvalHarness
	logger    *zap.Logger
}

// NewTester wires a generator, a runner over engine and the eval harness.
func NewTester(engine inference.Engine, gen GeneratorConfig, ev eval.EvalConfig, logger *zap.Logger) *Tester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tester{
		generator: NewGenerator(gen),
		runner:    NewRunner(engine),
		harness:   eval.NewEvalHarness(ev),
		logger:    logger.Named("perturb"),
	}
}

// Test rewrites prompt, predicts every variant and scores label invariance
// and confidence drop against the original prediction. Variants that fail
// label validation score as mismatches at zero confidence.
func (t *Tester) Test(ctx context.Context, contextID, prompt string, originalLabel prediction.Label, originalConfidence float64) (Report, error) {
	variants := t.generator.Generate(prompt)
	results, failed, err := t.runner.Run(ctx, contextID, variants)
	if err != nil {
		return Report{}, fmt.Errorf("perturbation test %s: %w", contextID, err)
	}

	matches, mismatched := CompareLabels(originalLabel, results)
	obs := make([]eval.Observation, len(results))
	outputs := make([]VariantOutput, len(results))
	for i, r := range results {
		obs[i] = eval.Observation{Label: string(r.PredictedLabel), Confidence: r.Confidence}
		outputs[i] = VariantOutput{PromptVariant: variants[i], Label: r.PredictedLabel, Confidence: r.Confidence}
	}
	for _, i := range failed {
		outputs[i].Error = results[i].RawOutput
	}
	verdict := t.harness.Run(string(originalLabel), originalConfidence, obs)

	report := Report{
		ContextID:            contextID,
		OriginalLabel:        originalLabel,
		PerturbationVariants: len(variants),
		MatchCount:           matches,
		FailedVariants:       len(failed),
		InvarianceScore:      verdict.Metric(eval.MetricInvariance),
		AvgConfidenceDrop:    verdict.Metric(eval.MetricConfidenceDrop),
		VariantOutputs:       outputs,
		IsConsistent:         verdict.Passed,
	}
	t.logger.Debug("perturbation tested",
		zap.String("context_id", contextID),
		zap.Int("matches", matches),
		zap.Ints("mismatched", mismatched),
		zap.Ints("failed", failed),
		zap.Bool("consistent", report.IsConsistent),
		zap.String("reason", verdict.Reason),
	)
	return report, nil
}

// #endregion tester
