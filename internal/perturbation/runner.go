package perturbation

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// Runner sends each variant to the engine verbatim.
type Runner struct {
	engine inference.Engine
}

// NewRunner creates a runner over engine.
func NewRunner(engine inference.Engine) *Runner {
	return &Runner{engine: engine}
}

// Run predicts every variant in order. Variant i is tagged <contextID>_v<i>.
// A variant whose output fails label validation is kept as a failed slot
// with no label and zero confidence, and its index is returned in failed.
// Any other inference error stops the run.
func (r *Runner) Run(ctx context.Context, contextID string, variants []string) (results []inference.Result, failed []int, err error) {
	results = make([]inference.Result, 0, len(variants))
	for i, v := range variants {
		id := fmt.Sprintf("%s_v%d", contextID, i)
		res, err := r.engine.Predict(ctx, inference.Request{
			ContextID: id,
			Prompt:    v,
			Decoding:  decoder.Text2Label,
		})
		if errors.Is(err, decoder.ErrInvalidLabel) {
			failed = append(failed, i)
			results = append(results, inference.Result{ContextID: id, Prompt: v, RawOutput: err.Error()})
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("run variant %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, failed, nil
}

// CompareLabels counts results that keep original and lists the indices of
// those that do not.
func CompareLabels(original prediction.Label, results []inference.Result) (int, []int) {
	var matches int
	var mismatched []int
	for i, r := range results {
		if r.PredictedLabel == original {
			matches++
		} else {
			mismatched = append(mismatched, i)
		}
	}
	return matches, mismatched
}
