package inference

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/citeloop/internal/codec"
	"github.com/danielpatrickdp/citeloop/internal/decoder"
)

// Generator is the slice of codec.Client the codec engine needs.
type Generator interface {
	Generate(ctx context.Context, req codec.GenerateRequest) (codec.GenerateResult, error)
}

// CodecEngine runs a locally served checkpoint through the codec gRPC
// service and decodes its text plus score vectors.
type CodecEngine struct {
	name       string
	checkpoint string
	gen        Generator
	dec        *decoder.Decoder
}

// NewCodecEngine creates an engine for checkpoint served behind gen.
func NewCodecEngine(name, checkpoint string, gen Generator, dec *decoder.Decoder) *CodecEngine {
	if dec == nil {
		dec = decoder.New(decoder.DefaultConfig())
	}
	return &CodecEngine{name: name, checkpoint: checkpoint, gen: gen, dec: dec}
}

// Name returns the registry name of the engine.
func (e *CodecEngine) Name() string { return e.name }

// Predict renders the prompt, generates, and decodes the final-step scores.
func (e *CodecEngine) Predict(ctx context.Context, req Request) (Result, error) {
	req = req.withDefaults()
	prompt, err := BuildPrompt(req)
	if err != nil {
		return Result{}, err
	}

	out, err := e.gen.Generate(ctx, codec.GenerateRequest{
		Model:        e.checkpoint,
		Prompt:       prompt,
		Temperature:  req.Temperature,
		MaxNewTokens: req.MaxNewTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("predict %s: %w", req.ContextID, err)
	}

	pred, err := e.dec.Decode(req.ContextID, out.Text, out.Scores, req.Decoding)
	if err != nil {
		return Result{}, err
	}
	return newResult(req, prompt, e.checkpoint, pred), nil
}
