package eval

import "fmt"

// Metric names.
const (
	MetricInvariance     = "invariance_score"
	MetricConfidenceDrop = "avg_confidence_drop"
)

// #region eval-harness
// EvalHarness scores variant outputs against an original prediction.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Config returns the thresholds in use.
func (h *EvalHarness) Config() EvalConfig { return h.config }

// Run compares every observation with the original label and confidence.
// With no observations both scores are zero, which fails the invariance check.
func (h *EvalHarness) Run(originalLabel string, originalConfidence float64, obs []Observation) EvalResult {
	invariance, drop := Scores(originalLabel, originalConfidence, obs)

	var metrics []EvalMetric
	var failReasons []string

	invPass := invariance >= h.config.MinInvariance
	metrics = append(metrics, EvalMetric{Name: MetricInvariance, Value: invariance, Pass: invPass})
	if !invPass {
		failReasons = append(failReasons, fmt.Sprintf("invariance %.4f below %.4f", invariance, h.config.MinInvariance))
	}

	dropPass := drop <= h.config.MaxConfidenceDrop
	metrics = append(metrics, EvalMetric{Name: MetricConfidenceDrop, Value: drop, Pass: dropPass})
	if !dropPass {
		failReasons = append(failReasons, fmt.Sprintf("confidence drop %.4f exceeds %.4f", drop, h.config.MaxConfidenceDrop))
	}

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region scores
// Scores returns the fraction of observations that keep originalLabel and the
// mean of originalConfidence minus each observed confidence. The drop is
// negative when variants are more confident.
func Scores(originalLabel string, originalConfidence float64, obs []Observation) (invariance, avgDrop float64) {
	if len(obs) == 0 {
		return 0, 0
	}
	var matches int
	var drop float64
	for _, o := range obs {
		if o.Label == originalLabel {
			matches++
		}
		drop += originalConfidence - o.Confidence
	}
	n := float64(len(obs))
	return float64(matches) / n, drop / n
}

// Accuracy returns the fraction of positions where preds equals labels over
// the shorter of the two. Empty input yields 0.
func Accuracy(preds, labels []string) float64 {
	n := min(len(preds), len(labels))
	if n == 0 {
		return 0
	}
	var hits int
	for i := range n {
		if preds[i] == labels[i] {
			hits++
		}
	}
	return float64(hits) / float64(n)
}

// #endregion scores
