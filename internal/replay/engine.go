package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/inference"
)

// ErrNotRecorded is returned when no recorded output exists for a prompt.
var ErrNotRecorded = errors.New("prompt not recorded")

// Engine serves recorded outputs by prompt so the pipeline can run offline.
type Engine struct {
	name    string
	dec     *decoder.Decoder
	records map[string]FixtureRecord
}

// NewEngine indexes records by prompt; later records replace earlier ones.
func NewEngine(name string, records []FixtureRecord, dec *decoder.Decoder) *Engine {
	if dec == nil {
		dec = decoder.New(decoder.DefaultConfig())
	}
	byPrompt := make(map[string]FixtureRecord, len(records))
	for _, r := range records {
		byPrompt[r.Prompt] = r
	}
	return &Engine{name: name, dec: dec, records: byPrompt}
}

// Name returns the engine name.
func (e *Engine) Name() string { return e.name }

// Predict renders req's prompt, looks up the recorded call and decodes it.
func (e *Engine) Predict(_ context.Context, req inference.Request) (inference.Result, error) {
	if req.Decoding == "" {
		req.Decoding = decoder.DirectLabel
	}
	prompt, err := inference.BuildPrompt(req)
	if err != nil {
		return inference.Result{}, err
	}
	rec, ok := e.records[prompt]
	if !ok {
		return inference.Result{}, fmt.Errorf("predict %s: %w", req.ContextID, ErrNotRecorded)
	}

	var logits map[string]float64
	if len(rec.Scores) > 0 {
		logits, err = e.dec.LabelLogits(rec.Scores)
		if err != nil {
			return inference.Result{}, fmt.Errorf("predict %s: %w", req.ContextID, err)
		}
	} else {
		logits = rec.Logits
	}
	pred, err := e.dec.DecodeLogits(req.ContextID, rec.Output, logits, req.Decoding)
	if err != nil {
		return inference.Result{}, err
	}

	return inference.Result{
		ContextID:      pred.ContextID,
		PredictedLabel: pred.FinalLabel,
		Confidence:     pred.Confidence,
		RawOutput:      pred.RawOutput,
		Prompt:         prompt,
		Logits:         pred.Logits,
		Meta: inference.Meta{
			ModelName:       e.name,
			TemplateVersion: inference.DefaultTemplateVersion,
			Temperature:     req.Temperature,
			UsedStrategy:    pred.UsedStrategy,
			LabelSource:     pred.LabelSource,
			PromptStrategy:  req.PromptStrategy,
			Scores:          "replay",
		},
	}, nil
}
