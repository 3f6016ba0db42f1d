// Package metaloop turns logged errors and accepted corrections into
// instruction-tuning pairs and hands them to an optional training sink.
package metaloop

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/citeloop/internal/logging"
	"github.com/danielpatrickdp/citeloop/internal/refinement"
)

// ErrUnknownStrategy is returned for pair strategies that do not exist.
var ErrUnknownStrategy = errors.New("unknown pair strategy")

// #region types

// PromptPair is one instruction/input/output training triple.
type PromptPair struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

// PairKind discriminates TrainingPair variants.
type PairKind string

const (
	KindDirect      PairKind = "direct"
	KindContrastive PairKind = "contrastive"
)

// TrainingPair is either a single item or a positive/negative pair.
type TrainingPair struct {
	Kind     PairKind    `json:"kind"`
	Item     *PromptPair `json:"item,omitempty"`
	Positive *PromptPair `json:"positive,omitempty"`
	Negative *PromptPair `json:"negative,omitempty"`
}

// Items returns the triples carried by the pair: the item, or the positive
// followed by the negative.
func (p TrainingPair) Items() []PromptPair {
	if p.Kind == KindContrastive {
		return []PromptPair{*p.Positive, *p.Negative}
	}
	return []PromptPair{*p.Item}
}

// #endregion types

// #region filter

// PairFilter selects (error, correction) pairs worth training on.
type PairFilter struct {
	MinConfidenceDelta float64
	RequireLabelFlip   bool
}

// DefaultPairFilter requires a label flip and any non-negative gain.
func DefaultPairFilter() PairFilter {
	return PairFilter{RequireLabelFlip: true}
}

// Match pairs an error with an accepted correction for the same context.
type Match struct {
	Error      logging.ErrorRecord
	Correction refinement.CorrectionProposal
}

// Select pairs each error with the first accepted correction for its context.
// Pairs whose corrected label equals the error's predicted label are dropped
// when a flip is required, as are pairs below the confidence floor.
func (f PairFilter) Select(errs []logging.ErrorRecord, corrections []refinement.CorrectionProposal) []Match {
	accepted := make(map[string]refinement.CorrectionProposal)
	for _, c := range corrections {
		if !c.Accepted {
			continue
		}
		if _, ok := accepted[c.ContextID]; !ok {
			accepted[c.ContextID] = c
		}
	}

	var out []Match
	for _, e := range errs {
		c, ok := accepted[e.ContextID]
		if !ok {
			continue
		}
		if f.RequireLabelFlip && e.PredictedLabel != nil && c.CorrectedLabel == *e.PredictedLabel {
			continue
		}
		if c.ConfidenceDelta < f.MinConfidenceDelta {
			continue
		}
		out = append(out, Match{Error: e, Correction: c})
	}
	return out
}

// #endregion filter

// #region strategies

// Strategy selects how a match becomes training data.
type Strategy string

const (
	StrategyDirect      Strategy = "direct"
	StrategyQA          Strategy = "qa"
	StrategyContrastive Strategy = "contrastive"
)

const (
	classifyInstruction = "Classify the citation type in the following context."
	qaInstruction       = "Based on the self-question, determine the correct citation type."
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyDirect, StrategyQA, StrategyContrastive:
		return st, nil
	case "":
		return StrategyDirect, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Assemble joins an optional Q/A cue and the context, blank-line separated.
func Assemble(context, question, answer string) string {
	var parts []string
	if question != "" && answer != "" {
		parts = append(parts, "Q: "+question+"\nA: "+answer)
	}
	if context != "" {
		parts = append(parts, context)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// Build converts one match under strategy.
func Build(strategy Strategy, m Match) (TrainingPair, error) {
	context := metaString(m.Error.Meta, "prompt")
	corrected := string(m.Correction.CorrectedLabel)

	switch strategy {
	case StrategyDirect:
		return TrainingPair{Kind: KindDirect, Item: &PromptPair{
			Instruction: classifyInstruction,
			Input:       Assemble(context, "", ""),
			Output:      corrected,
		}}, nil
	case StrategyQA:
		question := metaString(m.Error.Meta, "question")
		if question == "" {
			question = metaString(m.Correction.Metadata, "question")
		}
		return TrainingPair{Kind: KindDirect, Item: &PromptPair{
			Instruction: qaInstruction,
			Input:       Assemble(context, question, m.Correction.CorrectionReason),
			Output:      corrected,
		}}, nil
	case StrategyContrastive:
		input := Assemble(context, "", "")
		wrong := ""
		if m.Error.PredictedLabel != nil {
			wrong = string(*m.Error.PredictedLabel)
		}
		return TrainingPair{
			Kind:     KindContrastive,
			Positive: &PromptPair{Instruction: classifyInstruction, Input: input, Output: corrected},
			Negative: &PromptPair{Instruction: classifyInstruction, Input: input, Output: wrong},
		}, nil
	}
	return TrainingPair{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}

func metaString(meta map[string]any, key string) string {
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}

// #endregion strategies

// #region generator

// Generator filters matches and builds training pairs.
type Generator struct {
	Filter   PairFilter
	Strategy Strategy
}

// Generate returns one training pair per surviving match.
func (g Generator) Generate(errs []logging.ErrorRecord, corrections []refinement.CorrectionProposal) ([]TrainingPair, error) {
	matches := g.Filter.Select(errs, corrections)
	pairs := make([]TrainingPair, 0, len(matches))
	for _, m := range matches {
		p, err := Build(g.Strategy, m)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// #endregion generator
