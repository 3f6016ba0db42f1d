package orchestrator

import (
	"fmt"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/inference"
)

// #region strategy-definitions

// Strategies returns the full set of built-in strategy configs.
var Strategies = map[StrategyID]StrategyConfig{
	StrategyDefault: {
		ID:             StrategyDefault,
		PromptStrategy: inference.PromptZeroShot,
		Decoding:       decoder.DirectLabel,
	},
	StrategyFewShot: {
		ID:             StrategyFewShot,
		PromptStrategy: inference.PromptFewShot,
		Decoding:       decoder.DirectLabel,
		NumExemplars:   3,
	},
	StrategyCoT: {
		ID:             StrategyCoT,
		PromptStrategy: inference.PromptCoT,
		Decoding:       decoder.Text2Label,
	},
	StrategyLogit: {
		ID:             StrategyLogit,
		PromptStrategy: inference.PromptZeroShot,
		Decoding:       decoder.LogitMapped,
	},
}

// #endregion

// #region selector

// minSamples is how many outcomes a strategy needs before memory trusts it.
const minSamples = 3

// StrategySelector resolves strategy names, consulting memory for "auto".
type StrategySelector struct {
	memory *OutcomeMemory // nil = no learning
}

// NewStrategySelector creates a selector with optional memory backing.
func NewStrategySelector(memory *OutcomeMemory) *StrategySelector {
	return &StrategySelector{memory: memory}
}

// Select returns the config for id. An empty id is the default strategy;
// "auto" picks the best-scoring strategy in memory and falls back to the
// default when memory has too few samples.
func (s *StrategySelector) Select(id StrategyID) (StrategyConfig, error) {
	switch id {
	case "":
		return Strategies[StrategyDefault], nil
	case StrategyAuto:
		if s.memory != nil {
			learned, _, err := s.memory.BestStrategy(minSamples)
			if err == nil && learned != "" {
				if cfg, ok := Strategies[learned]; ok {
					return cfg, nil
				}
			}
		}
		return Strategies[StrategyDefault], nil
	}
	cfg, ok := Strategies[id]
	if !ok {
		return StrategyConfig{}, fmt.Errorf("unknown strategy %q", id)
	}
	return cfg, nil
}

// #endregion
