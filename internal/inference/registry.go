package inference

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
)

// Options configures engine construction.
type Options struct {
	// Codec serves local checkpoints. Required for local model names.
	Codec   Generator
	Decoder *decoder.Decoder
	// TextOnlyLogit is the synthetic logit for text-only providers.
	TextOnlyLogit float64
}

// LocalModels maps short model names to the checkpoints the serving process
// loads.
var LocalModels = map[string]string{
	"llama3":   "llama-3-8b-instruct",
	"mixtral":  "mixtral-8x7b-instruct",
	"qwen":     "qwen-7b-instruct",
	"gemma":    "gemma-7b-it",
	"deepseek": "deepseek-7b-base",
}

// NewEngine resolves a backend name to an Engine. It is a package-level
// variable so tests can swap it; restore it with t.Cleanup.
var NewEngine func(name string, opts Options) (Engine, error) = defaultNewEngine

func defaultNewEngine(name string, opts Options) (Engine, error) {
	if provider, model, ok := strings.Cut(name, ":"); ok {
		var p Provider
		var err error
		switch strings.ToLower(provider) {
		case "anthropic":
			p, err = newAnthropicProvider(model)
		case "openai":
			p, err = newOpenAIProvider(model)
		case "google":
			p, err = newGoogleProvider(model)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
		}
		if err != nil {
			return nil, fmt.Errorf("create %s engine: %w", provider, err)
		}
		return NewCompletionEngine(name, model, p, opts), nil
	}

	checkpoint, ok := LocalModels[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("create %s engine: codec client required", name)
	}
	return NewCodecEngine(name, checkpoint, opts.Codec, opts.Decoder), nil
}
