package orchestrator

// #region imports
import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/logging"
	"github.com/danielpatrickdp/citeloop/internal/perturbation"
)

// #endregion

// #region controller

// Controller runs one classification per call and reports the review
// signals. It never applies the threshold itself; it only records breaches.
type Controller struct {
	engine    inference.Engine
	tester    *perturbation.Tester
	errors    *logging.ErrorLogger
	threshold float64
	logger    *zap.Logger
}

// NewController creates a controller. tester and errors may be nil. A
// threshold of zero disables low-confidence logging.
func NewController(engine inference.Engine, tester *perturbation.Tester, errors *logging.ErrorLogger, threshold float64, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		engine:    engine,
		tester:    tester,
		errors:    errors,
		threshold: threshold,
		logger:    logger.Named("orch"),
	}
}

// #endregion

// #region classify

// Classify runs one inference call and, when requested, a perturbation test.
// Low confidence and inconsistency are logged as error records whose ids are
// returned in the outcome.
func (c *Controller) Classify(ctx context.Context, req ClassifyRequest) (Outcome, error) {
	res, err := c.engine.Predict(ctx, inference.Request{
		ContextID:      req.ContextID,
		Text:           req.Text,
		PromptStrategy: req.Strategy.PromptStrategy,
		Decoding:       req.Strategy.Decoding,
		Temperature:    req.Strategy.Temperature,
		Exemplars:      req.Exemplars,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("classify %s: %w", req.ContextID, err)
	}
	out := Outcome{Prediction: res.Prediction(), Result: res}

	if req.RunPerturbation && c.tester != nil {
		report, err := c.tester.Test(ctx, req.ContextID, res.Prompt, res.PredictedLabel, res.Confidence)
		if err != nil {
			return out, err
		}
		out.Perturbation = &report
		out.Prediction = out.Prediction.WithConsistency(report.IsConsistent, report.InvarianceScore)

		if !report.IsConsistent {
			if err := c.record(&out, logging.ErrorRecord{
				ContextID:      req.ContextID,
				ErrorType:      logging.InconsistentOutput,
				SourceModule:   logging.SourcePerturbation,
				PredictedLabel: logging.Ptr(res.PredictedLabel),
				Confidence:     logging.Ptr(res.Confidence),
				Reason:         fmt.Sprintf("invariance %.2f, confidence drop %.2f", report.InvarianceScore, report.AvgConfidenceDrop),
				Meta: map[string]any{
					logging.FlagInconsistent: true,
					"invariance_score":       report.InvarianceScore,
					"avg_confidence_drop":    report.AvgConfidenceDrop,
					"failed_variants":        report.FailedVariants,
				},
			}); err != nil {
				return out, err
			}
		}
	}

	if c.threshold > 0 && res.Confidence < c.threshold {
		rec := logging.TraceFromResult(res, nil, logging.Ptr(c.threshold), "confidence below threshold")
		rec.ErrorType = logging.LowConfidence
		if err := c.record(&out, rec); err != nil {
			return out, err
		}
	}

	c.logger.Debug("classified",
		zap.String("context_id", req.ContextID),
		zap.String("strategy", string(req.Strategy.ID)),
		zap.String("label", string(out.Prediction.FinalLabel)),
		zap.Float64("confidence", out.Prediction.Confidence))
	return out, nil
}

// record appends rec to the error log when one is configured.
func (c *Controller) record(out *Outcome, rec logging.ErrorRecord) error {
	if c.errors == nil {
		return nil
	}
	stored, err := c.errors.Log(rec)
	if err != nil {
		return fmt.Errorf("log %s for %s: %w", rec.ErrorType, rec.ContextID, err)
	}
	out.ErrorIDs = append(out.ErrorIDs, stored.ErrorID)
	return nil
}

// #endregion
