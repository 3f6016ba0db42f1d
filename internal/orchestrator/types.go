package orchestrator

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/perturbation"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #endregion

// #region state

// State is the review state of a classified context.
type State string

const (
	StateClassified  State = "CLASSIFIED"
	StateNeedsReview State = "NEEDS_REVIEW"
)

// DefaultThreshold is the confidence below which a prediction needs review.
const DefaultThreshold = 0.7

// #endregion

// #region strategy-id

// StrategyID identifies a classification strategy.
type StrategyID string

const (
	StrategyDefault StrategyID = "default"
	StrategyFewShot StrategyID = "few_shot"
	StrategyCoT     StrategyID = "cot"
	StrategyLogit   StrategyID = "logit"
	StrategyAuto    StrategyID = "auto"
)

// #endregion

// #region strategy-config

// StrategyConfig defines how a strategy shapes the inference call.
type StrategyConfig struct {
	ID             StrategyID
	PromptStrategy string
	Decoding       decoder.Strategy
	Temperature    float64
	NumExemplars   int // retrieved few-shot exemplars, 0 = none
}

// #endregion

// #region classify-request

// ClassifyRequest is one controller call.
type ClassifyRequest struct {
	Text            string
	ContextID       string
	Strategy        StrategyConfig
	RunPerturbation bool
	Exemplars       []inference.Exemplar
}

// Outcome is what the controller hands back: the prediction plus the signals
// a caller needs to decide on review.
type Outcome struct {
	Prediction   prediction.FinalPrediction
	Result       inference.Result
	Perturbation *perturbation.Report // nil unless perturbation ran
	ErrorIDs     []string
}

// #endregion

// #region correction

// Correction is an accepted refinement kept apart from the prediction it
// overrides.
type Correction struct {
	ContextID  string           `json:"context_id"`
	Label      prediction.Label `json:"label"`
	Confidence float64          `json:"confidence"`
	QuestionID string           `json:"question_id"`
	Reason     string           `json:"reason"`
}

// #endregion

// #region outcome-record

// OutcomeRecord is a single row for classification_outcomes.
type OutcomeRecord struct {
	RunID         string
	ContextID     string
	StrategyID    StrategyID
	State         State
	OriginalLabel prediction.Label
	FinalLabel    prediction.Label
	Confidence    float64
	Corrected     bool
	CreatedAt     time.Time
}

// StrategyStats aggregates outcomes for one strategy.
type StrategyStats struct {
	Total         int
	NeedsReview   int
	Corrected     int
	AvgConfidence float64
}

// #endregion

// #region summary

// Summary reports one pipeline run.
type Summary struct {
	RunID            string
	Total            int
	Classified       int
	NeedsReview      int
	Corrected        int
	RefinementFailed int
	Skipped          int
	ErrorIDs         []string
	PredictionsPath  string
	SubmissionPath   string
	PerturbationPath string
}

// #endregion
