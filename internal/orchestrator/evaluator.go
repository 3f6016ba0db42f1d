package orchestrator

import "github.com/danielpatrickdp/citeloop/internal/prediction"

// #region evaluate

// Evaluate maps a prediction onto its review state. A prediction needs
// review when its confidence is below threshold or a perturbation test marked
// it inconsistent.
func Evaluate(pred prediction.FinalPrediction, threshold float64) State {
	if pred.Confidence < threshold {
		return StateNeedsReview
	}
	if pred.IsConsistent != nil && !*pred.IsConsistent {
		return StateNeedsReview
	}
	return StateClassified
}

// #endregion

// #region effective

// Effective folds the latest correction for pred's context onto a copy of
// pred. pred itself is never modified.
func Effective(pred prediction.FinalPrediction, corrections []Correction) prediction.FinalPrediction {
	for i := len(corrections) - 1; i >= 0; i-- {
		c := corrections[i]
		if c.ContextID != pred.ContextID {
			continue
		}
		pred.FinalLabel = c.Label
		pred.Confidence = c.Confidence
		return pred
	}
	return pred
}

// #endregion
