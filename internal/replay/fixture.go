package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string          `json:"description"`
	Decoding    string          `json:"decoding"`
	Records     []FixtureRecord `json:"records"`
}

// FixtureRecord is one recorded model call and the label it should decode to.
// Scores holds raw per-step vectors; Logits holds already label-mapped
// values and is used when Scores is empty.
type FixtureRecord struct {
	ContextID      string             `json:"context_id"`
	Prompt         string             `json:"prompt"`
	Output         string             `json:"output"`
	Scores         [][]float32        `json:"scores,omitempty"`
	Logits         map[string]float64 `json:"logits,omitempty"`
	ExpectedLabel  prediction.Label   `json:"expected_label"`
	ExpectedSource string             `json:"expected_source,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// LoadDir loads every *.json fixture in dir, sorted by file name.
func LoadDir(dir string) (map[string]*Fixture, []string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("list fixtures: %w", err)
	}
	slices.Sort(paths)
	out := make(map[string]*Fixture, len(paths))
	for _, p := range paths {
		f, err := LoadFixture(p)
		if err != nil {
			return nil, nil, err
		}
		out[p] = f
	}
	return out, paths, nil
}

// Save writes f as indented JSON.
func (f *Fixture) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create fixture dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// FromReplayLog converts an inference replay log into fixture records. The
// recorded label and label source become the expectations.
func FromReplayLog(path string) ([]FixtureRecord, error) {
	recs, err := inference.LoadReplayLog(path)
	if err != nil {
		return nil, err
	}
	out := make([]FixtureRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, FixtureRecord{
			ContextID:      r.Metadata.ContextID,
			Prompt:         r.Prompt,
			Output:         r.Output,
			Logits:         r.Metadata.Logits,
			ExpectedLabel:  r.Metadata.Label,
			ExpectedSource: r.Metadata.LabelSource,
		})
	}
	return out, nil
}

// #endregion fixture-loader
