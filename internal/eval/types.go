package eval

// #region eval-config
// EvalConfig holds thresholds for the perturbation consistency verdict.
type EvalConfig struct {
	MinInvariance     float64 // fail if fewer variants keep the label
	MaxConfidenceDrop float64 // fail if variants lose more confidence on average
}

// DefaultEvalConfig returns the default consistency thresholds.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinInvariance:     0.9,
		MaxConfidenceDrop: 0.2,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of a consistency evaluation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// Metric returns the named metric value, or 0 when absent.
func (r EvalResult) Metric(name string) float64 {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m.Value
		}
	}
	return 0
}

// #endregion eval-result

// #region observation
// Observation is one variant's label and confidence.
type Observation struct {
	Label      string
	Confidence float64
}

// #endregion observation
