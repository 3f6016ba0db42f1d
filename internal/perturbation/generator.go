// Package perturbation checks whether a prediction survives small,
// meaning-preserving rewrites of its prompt.
package perturbation

import (
	"math/rand/v2"
	"strings"
)

// GeneratorConfig controls variant generation.
type GeneratorConfig struct {
	NumVariants int
	Seed        uint64
}

// DefaultGeneratorConfig returns five variants with a fixed seed.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{NumVariants: 5, Seed: 42}
}

// Generator produces prompt variants by cycling through four rewrites:
// polite prefix, courtesy suffix, filler word and comma-clause shuffle.
type Generator struct {
	config GeneratorConfig
}

// NewGenerator creates a generator.
func NewGenerator(config GeneratorConfig) *Generator {
	return &Generator{config: config}
}

// Generate returns NumVariants rewrites of prompt. The same seed and prompt
// always give the same variants.
func (g *Generator) Generate(prompt string) []string {
	rng := rand.New(rand.NewPCG(g.config.Seed, g.config.Seed^0x9e3779b97f4a7c15))
	variants := make([]string, 0, g.config.NumVariants)
	for i := range g.config.NumVariants {
		switch i % 4 {
		case 0:
			variants = append(variants, "Please "+prompt)
		case 1:
			variants = append(variants, prompt+", thank you")
		case 2:
			variants = append(variants, "Um, "+prompt)
		default:
			variants = append(variants, shuffleClauses(prompt, rng))
		}
	}
	return variants
}

// shuffleClauses reorders comma-separated clauses. Prompts without a comma
// are returned unchanged.
func shuffleClauses(prompt string, rng *rand.Rand) string {
	parts := strings.Split(prompt, ",")
	if len(parts) < 2 {
		return prompt
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	rng.Shuffle(len(parts), func(i, j int) { parts[i], parts[j] = parts[j], parts[i] })
	return strings.Join(parts, ", ")
}
