// Package logging records anomalies seen by the pipeline as ErrorRecords in
// an append-only JSONL log, with per-type sibling files and an optional
// sqlite mirror.
package logging

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region error-type
// ErrorType is the closed error taxonomy.
type ErrorType string

const (
	ClassificationError ErrorType = "classification_error"
	LowConfidence       ErrorType = "low_confidence"
	InconsistentOutput  ErrorType = "inconsistent_output"
	RefinementFailed    ErrorType = "refinement_failed"
	OutputDecoderError  ErrorType = "output_decoder_error"
	Other               ErrorType = "other"
)

// ErrorTypes lists every error type in declaration order.
var ErrorTypes = []ErrorType{
	ClassificationError, LowConfidence, InconsistentOutput,
	RefinementFailed, OutputDecoderError, Other,
}

// Valid reports whether t is in the taxonomy.
func (t ErrorType) Valid() bool {
	switch t {
	case ClassificationError, LowConfidence, InconsistentOutput, RefinementFailed, OutputDecoderError, Other:
		return true
	}
	return false
}

// ParseErrorType accepts the serialized value of an error type.
func ParseErrorType(s string) (ErrorType, error) {
	t := ErrorType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown error type %q", s)
	}
	return t, nil
}

// #endregion error-type

// #region source-module
// Modules that emit error records.
const (
	SourceClassifier       = "LLMClassifier"
	SourceRefinementEngine = "RefinementEngine"
	SourcePerturbation     = "PromptPerturbationTester"
	SourceSelfCorrector    = "SelfCorrector"
	SourceDecoder          = "LLMOutputDecoder"
	SourceOther            = "other"
)

// Meta flags read by Classify.
const (
	FlagInconsistent     = "is_inconsistent"
	FlagRefinementFailed = "refinement_failed"
	FlagDecoderError     = "decoder_error"
)

// #endregion source-module

// #region error-record
// TimestampFormat is UTC with second precision and a literal Z.
const TimestampFormat = "2006-01-02T15:04:05Z"

// ErrorRecord is one logged anomaly. Optional fields serialize as null.
type ErrorRecord struct {
	ErrorID             string            `json:"error_id"`
	ContextID           string            `json:"context_id"`
	ErrorType           ErrorType         `json:"error_type"`
	SourceModule        string            `json:"source_module"`
	OriginalLabel       *prediction.Label `json:"original_label"`
	PredictedLabel      *prediction.Label `json:"predicted_label"`
	RefinedLabel        *prediction.Label `json:"refined_label"`
	Confidence          *float64          `json:"confidence"`
	ConfidenceThreshold *float64          `json:"confidence_threshold"`
	Reason              string            `json:"reason"`
	Timestamp           string            `json:"timestamp"`
	Meta                map[string]any    `json:"meta"`
}

// Ptr returns a pointer to v, for filling optional record fields.
func Ptr[T any](v T) *T { return &v }

// Timestamp formats t the way records store it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// #endregion error-record
