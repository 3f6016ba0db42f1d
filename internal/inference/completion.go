package inference

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region provider

// Provider is a chat-completion backend that returns text only.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// LabelScorer is implemented by providers that can also return per-label
// log-probabilities for the first generated token. A nil map means no label
// token was found.
type LabelScorer interface {
	CompleteWithLabelLogits(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, map[string]float64, error)
}

// #endregion provider

// #region engine

// CompletionEngine adapts a Provider to the Engine contract.
type CompletionEngine struct {
	name          string
	model         string
	provider      Provider
	dec           *decoder.Decoder
	textOnlyLogit float64
}

// NewCompletionEngine creates an engine over p.
func NewCompletionEngine(name, model string, p Provider, opts Options) *CompletionEngine {
	dec := opts.Decoder
	if dec == nil {
		dec = decoder.New(decoder.DefaultConfig())
	}
	logit := opts.TextOnlyLogit
	if logit == 0 {
		logit = DefaultTextOnlyLogit
	}
	return &CompletionEngine{name: name, model: model, provider: p, dec: dec, textOnlyLogit: logit}
}

// Name returns the registry name of the engine.
func (e *CompletionEngine) Name() string { return e.name }

// Predict completes the prompt and decodes label logits. Providers without
// score output get a synthetic table built from the text label.
func (e *CompletionEngine) Predict(ctx context.Context, req Request) (Result, error) {
	req = req.withDefaults()
	prompt, err := BuildPrompt(req)
	if err != nil {
		return Result{}, err
	}

	var text string
	var logits map[string]float64
	if scorer, ok := e.provider.(LabelScorer); ok {
		text, logits, err = scorer.CompleteWithLabelLogits(ctx, SystemPrompt, prompt, req.MaxNewTokens, req.Temperature)
	} else {
		text, err = e.provider.Complete(ctx, SystemPrompt, prompt, req.MaxNewTokens, req.Temperature)
	}
	if err != nil {
		return Result{}, fmt.Errorf("predict %s: %w", req.ContextID, err)
	}

	scores := "model"
	if len(logits) == 0 {
		logits = SyntheticLogits(text, e.textOnlyLogit)
		scores = "synthetic"
	}

	pred, err := e.dec.DecodeLogits(req.ContextID, text, logits, req.Decoding)
	if err != nil {
		return Result{}, err
	}
	res := newResult(req, prompt, e.model, pred)
	res.Meta.Scores = scores
	return res, nil
}

// SyntheticLogits gives the label found in text a logit of value and every
// other label zero.
func SyntheticLogits(text string, value float64) map[string]float64 {
	found, _ := decoder.ExtractLabel(text)
	out := make(map[string]float64, len(prediction.Labels))
	for _, l := range prediction.Labels {
		out[string(l)] = 0
	}
	out[string(found)] = value
	return out
}

// #endregion engine
