package retrieval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// MemoryBuilder encodes context units into an index plus metadata.
type MemoryBuilder struct {
	encoder Encoder
	metric  Metric
	logger  *zap.Logger
}

// NewMemoryBuilder creates a builder. A nil logger is replaced by a no-op.
func NewMemoryBuilder(enc Encoder, metric Metric, logger *zap.Logger) *MemoryBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBuilder{encoder: enc, metric: metric, logger: logger.Named("retrieval")}
}

// LabeledUnit is a context unit with an optional gold label for exemplars.
type LabeledUnit struct {
	prediction.ContextUnit
	Label prediction.Label `json:"label,omitempty"`
}

// Build encodes every unit and returns the populated index and metadata, in
// unit order.
func (b *MemoryBuilder) Build(ctx context.Context, units []LabeledUnit) (*Indexer, []Metadata, error) {
	ix, err := NewIndexer(b.encoder.Dimensions(), b.metric)
	if err != nil {
		return nil, nil, err
	}
	if len(units) == 0 {
		return ix, []Metadata{}, nil
	}

	texts := make([]string, len(units))
	meta := make([]Metadata, len(units))
	for i, u := range units {
		texts[i] = u.Text
		m := Metadata{
			KeyText:      u.Text,
			KeyDocID:     u.DocID,
			KeyContextID: u.ContextID,
			KeySection:   u.Source.Section,
		}
		if u.Label.Valid() {
			m[KeyLabel] = string(u.Label)
		}
		meta[i] = m
	}

	vecs, err := b.encoder.Encode(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("encode memory: %w", err)
	}
	if err := ix.Add(vecs); err != nil {
		return nil, nil, fmt.Errorf("index memory: %w", err)
	}
	b.logger.Info("memory built", zap.Int("units", len(units)), zap.Int("dim", ix.Dim()))
	return ix, meta, nil
}

// BuildAndSave builds and persists the memory, returning the vector count.
func (b *MemoryBuilder) BuildAndSave(ctx context.Context, units []LabeledUnit, store Storage) (int, error) {
	ix, meta, err := b.Build(ctx, units)
	if err != nil {
		return 0, err
	}
	if err := store.Save(ctx, ix, meta); err != nil {
		return 0, fmt.Errorf("save memory: %w", err)
	}
	return ix.Len(), nil
}

// LoadLabeledUnits reads a JSONL file of context units with optional labels.
// Invalid lines are skipped and logged.
func (b *MemoryBuilder) LoadLabeledUnits(path string) ([]LabeledUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open memory input: %w", err)
	}
	defer f.Close()

	var units []LabeledUnit
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var u LabeledUnit
		if err := json.Unmarshal(sc.Bytes(), &u); err != nil {
			b.logger.Warn("skip memory line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if err := u.Check(0); err != nil {
			b.logger.Warn("skip memory line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		units = append(units, u)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read memory input: %w", err)
	}
	return units, nil
}
