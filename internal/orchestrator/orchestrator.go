package orchestrator

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/logging"
	"github.com/danielpatrickdp/citeloop/internal/perturbation"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
	"github.com/danielpatrickdp/citeloop/internal/refinement"
	"github.com/danielpatrickdp/citeloop/internal/submission"
)

// #endregion

// #region interfaces

// ExemplarSource supplies labelled neighbours for few-shot prompts.
type ExemplarSource interface {
	Exemplars(ctx context.Context, query, excludeContextID string, k int) []inference.Exemplar
}

// Refiner produces correction proposals for a prediction under review.
type Refiner interface {
	Run(ctx context.Context, unit prediction.ContextUnit, original prediction.FinalPrediction) ([]refinement.CorrectionProposal, error)
}

// #endregion

// #region pipeline-config

// PipelineConfig controls one run.
type PipelineConfig struct {
	Strategy       StrategyID
	Threshold      float64
	Refine         bool
	Perturb        bool
	OutputDir      string // predictions_<ts>.jsonl goes here
	SubmissionPath string // empty skips the submission
	ReportPath     string
}

// DefaultPipelineConfig returns the default run settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Strategy:  StrategyDefault,
		Threshold: DefaultThreshold,
		Refine:    true,
		OutputDir: "data/predictions",
	}
}

// #endregion

// #region pipeline-struct

// Pipeline classifies context units one after another, sends uncertain ones
// through refinement and writes the prediction log and submission.
type Pipeline struct {
	config     PipelineConfig
	controller *Controller
	selector   *StrategySelector
	exemplars  ExemplarSource
	refiner    Refiner
	errors     *logging.ErrorLogger
	memory     *OutcomeMemory
	writer     *submission.Writer
	enabled    bool
	logger     *zap.Logger
	now        func() time.Time
}

// PipelineDeps are the collaborators of a pipeline. Only Controller is
// required.
type PipelineDeps struct {
	Controller *Controller
	Exemplars  ExemplarSource
	Refiner    Refiner
	Errors     *logging.ErrorLogger
	Memory     *OutcomeMemory
	Writer     *submission.Writer
}

// NewPipeline wires a pipeline.
// Kill switch: set REFINEMENT_ENABLED=false to disable refinement.
func NewPipeline(config PipelineConfig, deps PipelineDeps, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	enabled := config.Refine && deps.Refiner != nil
	if v := os.Getenv("REFINEMENT_ENABLED"); v == "false" {
		enabled = false
	}
	writer := deps.Writer
	if writer == nil {
		writer = submission.NewWriter(logger)
	}
	return &Pipeline{
		config:     config,
		controller: deps.Controller,
		selector:   NewStrategySelector(deps.Memory),
		exemplars:  deps.Exemplars,
		refiner:    deps.Refiner,
		errors:     deps.Errors,
		memory:     deps.Memory,
		writer:     writer,
		enabled:    enabled,
		logger:     logger.Named("orch"),
		now:        time.Now,
	}
}

// RefinementEnabled returns whether uncertain predictions are refined.
func (p *Pipeline) RefinementEnabled() bool {
	return p.enabled
}

// #endregion

// #region run

// Run processes units in order. Inference failures abort the run; a decoder
// validation failure skips that unit after logging it. Units that were
// skipped are still backfilled into the submission.
func (p *Pipeline) Run(ctx context.Context, units []prediction.ContextUnit) (Summary, error) {
	sum := Summary{RunID: uuid.NewString(), Total: len(units)}
	strategy, err := p.selector.Select(p.config.Strategy)
	if err != nil {
		return sum, err
	}
	p.logger.Info("run started",
		zap.String("run_id", sum.RunID),
		zap.Int("units", len(units)),
		zap.String("strategy", string(strategy.ID)),
		zap.Bool("refine", p.enabled))

	var effective []prediction.FinalPrediction
	var reports []perturbation.Report
	expected := make([]string, 0, len(units))
	for _, unit := range units {
		expected = append(expected, unit.ContextID)
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		pred, ok, err := p.processUnit(ctx, unit, strategy, &sum, &reports)
		if err != nil {
			return sum, err
		}
		if ok {
			effective = append(effective, pred)
		}
	}

	if err := p.writeOutputs(effective, reports, expected, &sum); err != nil {
		return sum, err
	}
	p.logger.Info("run finished",
		zap.String("run_id", sum.RunID),
		zap.Int("classified", sum.Classified),
		zap.Int("needs_review", sum.NeedsReview),
		zap.Int("corrected", sum.Corrected),
		zap.Int("skipped", sum.Skipped))
	return sum, nil
}

// processUnit classifies one unit and applies review and refinement. ok is
// false when the unit was skipped.
func (p *Pipeline) processUnit(ctx context.Context, unit prediction.ContextUnit, strategy StrategyConfig, sum *Summary, reports *[]perturbation.Report) (prediction.FinalPrediction, bool, error) {
	req := ClassifyRequest{
		Text:            unit.Text,
		ContextID:       unit.ContextID,
		Strategy:        strategy,
		RunPerturbation: p.config.Perturb,
	}
	if strategy.NumExemplars > 0 && p.exemplars != nil {
		req.Exemplars = p.exemplars.Exemplars(ctx, unit.Text, unit.ContextID, strategy.NumExemplars)
	}

	out, err := p.controller.Classify(ctx, req)
	if errors.Is(err, decoder.ErrInvalidLabel) {
		sum.Skipped++
		rec, logErr := p.logError(logging.ErrorRecord{
			ContextID:    unit.ContextID,
			ErrorType:    logging.OutputDecoderError,
			SourceModule: logging.SourceDecoder,
			Reason:       err.Error(),
			Meta:         map[string]any{logging.FlagDecoderError: true},
		})
		if logErr != nil {
			return prediction.FinalPrediction{}, false, logErr
		}
		p.logger.Warn("unit skipped", zap.String("context_id", unit.ContextID), zap.String("error_id", rec.ErrorID), zap.Error(err))
		return prediction.FinalPrediction{}, false, nil
	}
	if err != nil {
		return prediction.FinalPrediction{}, false, err
	}
	sum.ErrorIDs = append(sum.ErrorIDs, out.ErrorIDs...)
	if out.Perturbation != nil {
		*reports = append(*reports, *out.Perturbation)
	}

	pred := out.Prediction
	state := Evaluate(pred, p.config.Threshold)
	var corrections []Correction

	if state == StateClassified {
		sum.Classified++
	} else {
		sum.NeedsReview++
		if p.enabled {
			c, err := p.refine(ctx, unit, pred, sum)
			if err != nil {
				return prediction.FinalPrediction{}, false, err
			}
			if c != nil {
				corrections = append(corrections, *c)
			}
		}
	}

	final := Effective(pred, corrections)
	if p.memory != nil {
		if err := p.memory.RecordOutcome(OutcomeRecord{
			RunID:         sum.RunID,
			ContextID:     unit.ContextID,
			StrategyID:    strategy.ID,
			State:         state,
			OriginalLabel: pred.FinalLabel,
			FinalLabel:    final.FinalLabel,
			Confidence:    final.Confidence,
			Corrected:     len(corrections) > 0,
			CreatedAt:     p.now(),
		}); err != nil {
			p.logger.Warn("failed to record outcome", zap.String("context_id", unit.ContextID), zap.Error(err))
		}
	}
	return final, true, nil
}

// refine runs the refiner and applies the first-accepted policy. A nil
// correction means none was accepted; that case is logged.
func (p *Pipeline) refine(ctx context.Context, unit prediction.ContextUnit, pred prediction.FinalPrediction, sum *Summary) (*Correction, error) {
	proposals, err := p.refiner.Run(ctx, unit, pred)
	if err != nil {
		return nil, fmt.Errorf("refine %s: %w", unit.ContextID, err)
	}

	if best, ok := refinement.FirstAccepted(proposals); ok {
		sum.Corrected++
		p.logger.Info("correction accepted",
			zap.String("context_id", unit.ContextID),
			zap.String("from", string(best.OriginalLabel)),
			zap.String("to", string(best.CorrectedLabel)),
			zap.Float64("delta", best.ConfidenceDelta))
		return &Correction{
			ContextID:  best.ContextID,
			Label:      best.CorrectedLabel,
			Confidence: best.CorrectedConfidence,
			QuestionID: best.QuestionID,
			Reason:     best.CorrectionReason,
		}, nil
	}

	sum.RefinementFailed++
	failure := logging.ErrorRecord{
		ContextID:      unit.ContextID,
		ErrorType:      logging.RefinementFailed,
		SourceModule:   logging.SourceRefinementEngine,
		OriginalLabel:  logging.Ptr(pred.FinalLabel),
		PredictedLabel: logging.Ptr(pred.FinalLabel),
		Confidence:     logging.Ptr(pred.Confidence),
		Reason:         "no accepted correction",
		Meta:           map[string]any{},
	}
	if n := len(proposals); n > 0 {
		// the last attempt carries the refined label that was turned down
		failure = logging.TraceFromProposal(proposals[n-1], "no accepted correction")
		failure.SourceModule = logging.SourceRefinementEngine
		failure.PredictedLabel = logging.Ptr(pred.FinalLabel)
	}
	failure.Meta[logging.FlagRefinementFailed] = true
	failure.Meta["proposals"] = len(proposals)
	failure.Meta["prompt"] = unit.Text
	rec, err := p.logError(failure)
	if err != nil {
		return nil, err
	}
	if rec.ErrorID != "" {
		sum.ErrorIDs = append(sum.ErrorIDs, rec.ErrorID)
	}
	return nil, nil
}

func (p *Pipeline) logError(rec logging.ErrorRecord) (logging.ErrorRecord, error) {
	if p.errors == nil {
		return rec, nil
	}
	return p.errors.Log(rec)
}

// #endregion

// #region outputs

func (p *Pipeline) writeOutputs(preds []prediction.FinalPrediction, reports []perturbation.Report, expected []string, sum *Summary) error {
	if p.config.OutputDir != "" {
		stamp := p.now().UTC().Format("20060102_150405")
		path := filepath.Join(p.config.OutputDir, "predictions_"+stamp+".jsonl")
		if err := WritePredictions(path, preds); err != nil {
			return err
		}
		sum.PredictionsPath = path

		if len(reports) > 0 {
			path := filepath.Join(p.config.OutputDir, "perturbation_"+stamp+".jsonl")
			if err := writePerturbation(path, reports); err != nil {
				return err
			}
			sum.PerturbationPath = path
		}
	}

	if p.config.SubmissionPath == "" {
		return nil
	}
	rows := make([]any, len(preds))
	for i, pr := range preds {
		rows[i] = pr
	}
	if _, err := p.writer.Write(rows, p.config.SubmissionPath, expected, p.config.ReportPath); err != nil {
		return err
	}
	sum.SubmissionPath = p.config.SubmissionPath
	return nil
}

// predictionLine is the predictions log shape.
type predictionLine struct {
	ContextID    string             `json:"context_id"`
	FinalLabel   prediction.Label   `json:"final_label"`
	Confidence   float64            `json:"confidence"`
	RawOutput    string             `json:"raw_output"`
	UsedStrategy string             `json:"used_strategy"`
	LabelSource  string             `json:"label_source"`
	Logits       map[string]float64 `json:"logits"`
}

func writePerturbation(path string, reports []perturbation.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create perturbation log: %w", err)
	}
	defer f.Close()
	if err := perturbation.WriteJSONL(f, reports); err != nil {
		return err
	}
	return f.Close()
}

// WritePredictions writes one prediction per line.
func WritePredictions(path string, preds []prediction.FinalPrediction) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create predictions dir: %w", err)
	}
	var b strings.Builder
	for _, pr := range preds {
		line, err := json.Marshal(predictionLine{
			ContextID:    pr.ContextID,
			FinalLabel:   pr.FinalLabel,
			Confidence:   pr.Confidence,
			RawOutput:    pr.RawOutput,
			UsedStrategy: pr.UsedStrategy,
			LabelSource:  pr.LabelSource,
			Logits:       pr.Logits,
		})
		if err != nil {
			return fmt.Errorf("encode prediction %s: %w", pr.ContextID, err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return nil
}

// #endregion
