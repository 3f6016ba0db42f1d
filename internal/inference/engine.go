// Package inference defines the Engine contract every model backend satisfies
// and a registry that resolves backend names to engines.
package inference

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region errors
var (
	// ErrUnknownEngine is returned by NewEngine for names no backend claims.
	ErrUnknownEngine = errors.New("unknown inference engine")
	// ErrUnknownStrategy is returned for prompt strategies with no template.
	ErrUnknownStrategy = errors.New("unknown prompt strategy")
)

// #endregion errors

// #region defaults
const (
	DefaultPromptStrategy  = PromptZeroShot
	DefaultTemperature     = 0.0
	DefaultMaxNewTokens    = 32
	DefaultTemplateVersion = "v1"
	DefaultTextOnlyLogit   = 2.0
)

// #endregion defaults

// #region types

// Engine produces one label prediction per call.
type Engine interface {
	Predict(ctx context.Context, req Request) (Result, error)
	Name() string
}

// Exemplar is a labelled example rendered into few-shot prompts.
type Exemplar struct {
	Text  string
	Label prediction.Label
}

// Request is one inference call. When Prompt is set it is sent verbatim and
// PromptStrategy is ignored.
type Request struct {
	ContextID      string
	Text           string
	Prompt         string
	PromptStrategy string
	Decoding       decoder.Strategy
	Temperature    float64
	MaxNewTokens   int
	Exemplars      []Exemplar
}

// withDefaults fills zero fields.
func (r Request) withDefaults() Request {
	if r.PromptStrategy == "" {
		r.PromptStrategy = DefaultPromptStrategy
	}
	if r.Decoding == "" {
		r.Decoding = decoder.DirectLabel
	}
	if r.MaxNewTokens <= 0 {
		r.MaxNewTokens = DefaultMaxNewTokens
	}
	return r
}

// Meta describes how a result was produced.
type Meta struct {
	ModelName       string  `json:"model_name"`
	TemplateVersion string  `json:"template_version"`
	Temperature     float64 `json:"temperature"`
	UsedStrategy    string  `json:"used_strategy"`
	LabelSource     string  `json:"label_source"`
	PromptStrategy  string  `json:"prompt_strategy,omitempty"`
	Scores          string  `json:"scores,omitempty"`
}

// Result is the structured output of one Predict call.
type Result struct {
	ContextID      string             `json:"context_id"`
	PredictedLabel prediction.Label   `json:"predicted_label"`
	Confidence     float64            `json:"confidence"`
	RawOutput      string             `json:"raw_output"`
	Prompt         string             `json:"prompt"`
	Logits         map[string]float64 `json:"logits"`
	Meta           Meta               `json:"meta"`
}

// Prediction converts the result into the decoder's FinalPrediction shape.
func (r Result) Prediction() prediction.FinalPrediction {
	return prediction.FinalPrediction{
		ContextID:    r.ContextID,
		FinalLabel:   r.PredictedLabel,
		Confidence:   r.Confidence,
		RawOutput:    r.RawOutput,
		UsedStrategy: r.Meta.UsedStrategy,
		LabelSource:  r.Meta.LabelSource,
		Logits:       r.Logits,
	}
}

// newResult assembles a Result from a decoded prediction.
func newResult(req Request, prompt, model string, pred prediction.FinalPrediction) Result {
	return Result{
		ContextID:      pred.ContextID,
		PredictedLabel: pred.FinalLabel,
		Confidence:     pred.Confidence,
		RawOutput:      pred.RawOutput,
		Prompt:         prompt,
		Logits:         pred.Logits,
		Meta: Meta{
			ModelName:       model,
			TemplateVersion: DefaultTemplateVersion,
			Temperature:     req.Temperature,
			UsedStrategy:    pred.UsedStrategy,
			LabelSource:     pred.LabelSource,
			PromptStrategy:  promptStrategyOf(req),
		},
	}
}

func promptStrategyOf(req Request) string {
	if req.Prompt != "" {
		return "verbatim"
	}
	return req.PromptStrategy
}

// #endregion types
