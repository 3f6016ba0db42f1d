package prediction

import "strings"

// #region label

// Label is a citation class.
type Label string

const (
	Primary   Label = "primary"
	Secondary Label = "secondary"
	None      Label = "none"
)

// Labels is the closed label set in canonical order. Order matters: it breaks
// argmax ties and drives substring matching.
var Labels = []Label{Primary, Secondary, None}

// Valid reports whether l is one of the three allowed labels.
func (l Label) Valid() bool {
	switch l {
	case Primary, Secondary, None:
		return true
	}
	return false
}

// ParseLabel normalises s and returns the matching label.
func ParseLabel(s string) (Label, bool) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

// #endregion label

// #region final-prediction

// FinalPrediction is the reported prediction for one context. It is never
// mutated after creation; refinement records corrections separately.
type FinalPrediction struct {
	ContextID         string             `json:"context_id"`
	FinalLabel        Label              `json:"final_label"`
	Confidence        float64            `json:"confidence"`
	RawOutput         string             `json:"raw_output"`
	UsedStrategy      string             `json:"used_strategy"`
	LabelSource       string             `json:"label_source"`
	Logits            map[string]float64 `json:"logits"`
	IsConsistent      *bool              `json:"is_consistent,omitempty"`
	PerturbationScore *float64           `json:"perturbation_score,omitempty"`
}

// WithConsistency returns a copy annotated with a perturbation verdict.
func (p FinalPrediction) WithConsistency(consistent bool, score float64) FinalPrediction {
	p.IsConsistent = &consistent
	p.PerturbationScore = &score
	return p
}

// #endregion final-prediction
