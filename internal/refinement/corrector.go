package refinement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/gate"
	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region proposal
// CorrectionProposal is the outcome of one re-ask attempt, accepted or not.
type CorrectionProposal struct {
	ContextID           string           `json:"context_id"`
	OriginalLabel       prediction.Label `json:"original_label"`
	CorrectedLabel      prediction.Label `json:"corrected_label"`
	OriginalConfidence  float64          `json:"original_confidence"`
	CorrectedConfidence float64          `json:"corrected_confidence"`
	ConfidenceDelta     float64          `json:"confidence_delta"`
	CorrectionReason    string           `json:"correction_reason"`
	Accepted            bool             `json:"accepted"`
	QuestionID          string           `json:"question_id"`
	Metadata            map[string]any   `json:"metadata"`
}

// #endregion proposal

// #region reask
// ReaskPrompt appends a question to the context as a Q/A cue.
func ReaskPrompt(contextText, question string) string {
	return contextText + "\n\nQuestion: " + question + "\nAnswer:"
}

// #endregion reask

// #region corrector
// CorrectorConfig selects how the re-ask call is rendered and decoded.
type CorrectorConfig struct {
	PromptStrategy string
	Decoding       decoder.Strategy
	Gate           gate.GateConfig
}

// DefaultCorrectorConfig uses the engine defaults and the default gate.
func DefaultCorrectorConfig() CorrectorConfig {
	return CorrectorConfig{Gate: gate.DefaultGateConfig()}
}

// Corrector re-runs inference with a self-question and judges the answer.
type Corrector struct {
	engine inference.Engine
	gate   *gate.Gate
	config CorrectorConfig
	log    *CorrectionLog
	logger *zap.Logger
}

// NewCorrector creates a corrector. log may be nil to skip persistence.
func NewCorrector(engine inference.Engine, config CorrectorConfig, log *CorrectionLog, logger *zap.Logger) *Corrector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Corrector{
		engine: engine,
		gate:   gate.NewGate(config.Gate),
		config: config,
		log:    log,
		logger: logger.Named("refine"),
	}
}

// Correct asks question about unit and returns the resulting proposal. The
// proposal is appended to the correction log before it is returned.
func (c *Corrector) Correct(ctx context.Context, unit prediction.ContextUnit, question SelfQuestionItem, original prediction.FinalPrediction) (CorrectionProposal, error) {
	prompt := ReaskPrompt(unit.Text, question.QuestionText)
	res, err := c.engine.Predict(ctx, inference.Request{
		ContextID:      question.ContextID,
		Text:           prompt,
		PromptStrategy: c.config.PromptStrategy,
		Decoding:       c.config.Decoding,
	})
	if err != nil {
		return CorrectionProposal{}, fmt.Errorf("reask %s: %w", question.QuestionID, err)
	}

	cand := gate.Candidate{
		OriginalLabel:       original.FinalLabel,
		OriginalConfidence:  original.Confidence,
		CorrectedLabel:      res.PredictedLabel,
		CorrectedConfidence: res.Confidence,
	}
	decision := c.gate.Evaluate(cand)

	p := CorrectionProposal{
		ContextID:           question.ContextID,
		OriginalLabel:       cand.OriginalLabel,
		CorrectedLabel:      cand.CorrectedLabel,
		OriginalConfidence:  cand.OriginalConfidence,
		CorrectedConfidence: cand.CorrectedConfidence,
		ConfidenceDelta:     cand.Delta(),
		CorrectionReason:    decision.Reason,
		Accepted:            decision.Accepted,
		QuestionID:          question.QuestionID,
		Metadata: map[string]any{
			"original_confidence":  cand.OriginalConfidence,
			"corrected_confidence": cand.CorrectedConfidence,
			"reask_prompt":         prompt,
			"raw_response":         res.RawOutput,
			"question":             question.QuestionText,
		},
	}
	c.logger.Debug("correction evaluated",
		zap.String("context_id", p.ContextID),
		zap.String("question_id", p.QuestionID),
		zap.String("decision", gate.Describe(cand, decision)))

	if c.log != nil {
		if err := c.log.Append(p); err != nil {
			return p, err
		}
	}
	return p, nil
}

// #endregion corrector
