package inference

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// missingLogprob stands in for labels absent from the top log-probabilities.
const missingLogprob = -20.0

const topLogprobs = 5

// openaiProvider implements Provider and LabelScorer with chat completions.
type openaiProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(model string) (Provider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiProvider{client: client, model: model}, nil
}

func (p *openaiProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	text, _, err := p.CompleteWithLabelLogits(ctx, systemPrompt, userPrompt, maxTokens, temperature)
	return text, err
}

// CompleteWithLabelLogits requests top log-probabilities and maps the first
// token position that names a label onto the label table.
func (p *openaiProvider) CompleteWithLabelLogits(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, map[string]float64, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
		Logprobs:    openai.Bool(true),
		TopLogprobs: openai.Int(topLogprobs),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("openai chat.completions.new: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("openai: no choices in response")
	}

	choice := resp.Choices[0]
	var positions [][]tokenLogprob
	for _, tok := range choice.Logprobs.Content {
		cands := make([]tokenLogprob, 0, len(tok.TopLogprobs)+1)
		cands = append(cands, tokenLogprob{token: tok.Token, logprob: tok.Logprob})
		for _, top := range tok.TopLogprobs {
			cands = append(cands, tokenLogprob{token: top.Token, logprob: top.Logprob})
		}
		positions = append(positions, cands)
	}
	return choice.Message.Content, labelLogprobs(positions), nil
}

type tokenLogprob struct {
	token   string
	logprob float64
}

// labelLogprobs scans token positions in order and returns the label table
// of the first position whose candidates name at least one label.
func labelLogprobs(positions [][]tokenLogprob) map[string]float64 {
	for _, cands := range positions {
		found := make(map[string]float64)
		for _, c := range cands {
			l, ok := prediction.ParseLabel(strings.TrimSpace(c.token))
			if !ok {
				continue
			}
			if prev, seen := found[string(l)]; !seen || c.logprob > prev {
				found[string(l)] = c.logprob
			}
		}
		if len(found) == 0 {
			continue
		}
		for _, l := range prediction.Labels {
			if _, ok := found[string(l)]; !ok {
				found[string(l)] = missingLogprob
			}
		}
		return found
	}
	return nil
}
