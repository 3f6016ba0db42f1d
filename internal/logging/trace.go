package logging

import (
	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
	"github.com/danielpatrickdp/citeloop/internal/refinement"
)

// #region trace
// TraceFromResult turns an inference result into an unclassified record.
// originalLabel and threshold may be nil.
func TraceFromResult(res inference.Result, originalLabel *prediction.Label, threshold *float64, reason string) ErrorRecord {
	return ErrorRecord{
		ContextID:           res.ContextID,
		ErrorType:           Other,
		SourceModule:        SourceClassifier,
		OriginalLabel:       originalLabel,
		PredictedLabel:      Ptr(res.PredictedLabel),
		Confidence:          Ptr(res.Confidence),
		ConfidenceThreshold: threshold,
		Reason:              reason,
		Meta: map[string]any{
			"prompt":     res.Prompt,
			"raw_output": res.RawOutput,
		},
	}
}

// TraceFromProposal records a proposal that did not resolve a context.
func TraceFromProposal(p refinement.CorrectionProposal, reason string) ErrorRecord {
	if reason == "" {
		reason = "Correction proposal did not resolve issue"
	}
	return ErrorRecord{
		ContextID:      p.ContextID,
		ErrorType:      RefinementFailed,
		SourceModule:   SourceSelfCorrector,
		OriginalLabel:  Ptr(p.OriginalLabel),
		PredictedLabel: Ptr(p.OriginalLabel),
		RefinedLabel:   Ptr(p.CorrectedLabel),
		Confidence:     Ptr(p.CorrectedConfidence),
		Reason:         reason,
		Meta:           map[string]any{"proposal": p},
	}
}

// #endregion trace
