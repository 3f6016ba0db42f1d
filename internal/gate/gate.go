package gate

import "fmt"

// Reasons reported by Evaluate.
const (
	ReasonAccepted        = "label changed with sufficient confidence"
	ReasonLabelUnchanged  = "label unchanged"
	ReasonDeltaTooLow     = "confidence delta too low"
	ReasonBelowConfidence = "corrected confidence below threshold"
)

// Tolerance absorbs float rounding in the inclusive threshold comparisons,
// so 0.95-0.80 still meets a 0.15 minimum delta. Shortfalls larger than
// this are rejected.
const Tolerance = 1e-9

// #region gate
// Gate decides whether a correction replaces the original prediction.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Config returns the thresholds in use.
func (g *Gate) Config() GateConfig { return g.config }

// Evaluate runs the checks in order: label change, confidence delta, absolute
// confidence. The reason is the first failed check. Evaluate is pure.
func (g *Gate) Evaluate(c Candidate) GateDecision {
	var vetoes []VetoSignal

	// 1. The label must actually change
	if c.CorrectedLabel == c.OriginalLabel {
		vetoes = append(vetoes, VetoSignal{Type: VetoLabelUnchanged, Reason: ReasonLabelUnchanged})
	}

	// 2. Confidence gain
	delta := c.Delta()
	if delta+Tolerance < g.config.MinDelta {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoDeltaTooLow,
			Reason: ReasonDeltaTooLow,
		})
	}

	// 3. Absolute confidence floor
	if c.CorrectedConfidence+Tolerance < g.config.MinConfidence {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoLowConfidence,
			Reason: ReasonBelowConfidence,
		})
	}

	margin := delta - g.config.MinDelta
	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Accepted:    false,
			Reason:      vetoes[0].Reason,
			VetoSignals: vetoes,
			Margin:      margin,
		}
	}

	return GateDecision{
		Action:   "accept",
		Accepted: true,
		Reason:   ReasonAccepted,
		Margin:   margin,
	}
}

// #endregion gate

// #region describe
// Describe formats a decision for log lines.
func Describe(c Candidate, d GateDecision) string {
	return fmt.Sprintf("%s -> %s (%.3f -> %.3f, delta=%+.3f): %s",
		c.OriginalLabel, c.CorrectedLabel, c.OriginalConfidence, c.CorrectedConfidence, c.Delta(), d.Reason)
}

// #endregion describe
