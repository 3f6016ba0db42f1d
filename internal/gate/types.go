package gate

import "github.com/danielpatrickdp/citeloop/internal/prediction"

// #region veto-type
// VetoType enumerates the acceptance checks a correction can fail.
type VetoType string

const (
	VetoLabelUnchanged VetoType = "label_unchanged"
	VetoDeltaTooLow    VetoType = "delta_too_low"
	VetoLowConfidence  VetoType = "low_confidence"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents one failed acceptance check.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for accepting a correction.
type GateConfig struct {
	MinDelta      float64 // corrected minus original confidence must reach this
	MinConfidence float64 // corrected confidence must reach this
}

// DefaultGateConfig returns the default acceptance thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinDelta:      0.15,
		MinConfidence: 0.80,
	}
}

// #endregion gate-config

// #region candidate
// Candidate pairs an original prediction with a proposed correction.
type Candidate struct {
	OriginalLabel       prediction.Label
	OriginalConfidence  float64
	CorrectedLabel      prediction.Label
	CorrectedConfidence float64
}

// Delta is corrected minus original confidence.
func (c Candidate) Delta() float64 {
	return c.CorrectedConfidence - c.OriginalConfidence
}

// #endregion candidate

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "accept" | "reject"
	Accepted    bool
	Reason      string
	VetoSignals []VetoSignal // every failed check, in check order
	Margin      float64      // delta minus MinDelta (for logging)
}

// #endregion gate-decision
