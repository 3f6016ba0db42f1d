package inference

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// Prompt strategies.
const (
	PromptZeroShot = "zero-shot"
	PromptFewShot  = "few-shot"
	PromptCoT      = "cot-style"
)

// SystemPrompt is sent to chat-style backends alongside the rendered prompt.
const SystemPrompt = "You are a citation classifier. Answer with exactly one word: primary, secondary, or none."

var builtinExemplars = []Exemplar{
	{Text: "Data were collected from surveys.", Label: prediction.Primary},
	{Text: "We refer to CDC statistics.", Label: prediction.Secondary},
}

// BuildPrompt returns the prompt that will be sent for req.
func BuildPrompt(req Request) (string, error) {
	if req.Prompt != "" {
		return req.Prompt, nil
	}
	return RenderPrompt(req.Text, req.PromptStrategy, req.Exemplars)
}

// RenderPrompt merges context into the template for strategy. Few-shot uses
// the supplied exemplars, or two built-in examples when none are given.
func RenderPrompt(context, strategy string, exemplars []Exemplar) (string, error) {
	switch strategy {
	case PromptZeroShot, "":
		return "You are a citation classifier. " +
			"Classify the following text as primary, secondary, or none.\n" +
			"Text: " + context + "\nLabel:", nil
	case PromptFewShot:
		if len(exemplars) == 0 {
			exemplars = builtinExemplars
		}
		var sb strings.Builder
		sb.WriteString("You are a citation classifier.\n")
		for _, ex := range exemplars {
			fmt.Fprintf(&sb, "Example: Text: '%s' Label: %s\n", oneLine(ex.Text), ex.Label)
		}
		sb.WriteString("Now classify the following text.\n")
		sb.WriteString("Text: " + context + "\nLabel:")
		return sb.String(), nil
	case PromptCoT:
		return "Classify the citation as primary, secondary, or none. " +
			"Think step by step before giving the final answer.\n" +
			"Text: " + context + "\nReasoning:", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
