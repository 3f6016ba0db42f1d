package refinement

import (
	"context"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region engine
// Engine generates every self-question for a prediction and corrects once per
// question. It returns all proposals; choosing a winner is the caller's job.
type Engine struct {
	questioner *Questioner
	corrector  *Corrector
	logger     *zap.Logger
}

// NewEngine wires a questioner to a corrector.
func NewEngine(q *Questioner, c *Corrector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{questioner: q, corrector: c, logger: logger.Named("refine")}
}

// Run returns one proposal per generated question. An inference failure stops
// the loop; proposals made before it are returned with the error.
func (e *Engine) Run(ctx context.Context, unit prediction.ContextUnit, original prediction.FinalPrediction) ([]CorrectionProposal, error) {
	questions := e.questioner.Generate(unit, original)
	e.logger.Debug("questions generated",
		zap.String("context_id", unit.ContextID),
		zap.Int("count", len(questions)))

	proposals := make([]CorrectionProposal, 0, len(questions))
	for _, q := range questions {
		p, err := e.corrector.Correct(ctx, unit, q, original)
		if err != nil {
			return proposals, err
		}
		proposals = append(proposals, p)
	}
	return proposals, nil
}

// #endregion engine

// #region selection
// FirstAccepted returns the first accepted proposal, if any.
func FirstAccepted(proposals []CorrectionProposal) (CorrectionProposal, bool) {
	for _, p := range proposals {
		if p.Accepted {
			return p, true
		}
	}
	return CorrectionProposal{}, false
}

// #endregion selection
