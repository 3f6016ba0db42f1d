package metaloop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/eval"
	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/logging"
	"github.com/danielpatrickdp/citeloop/internal/refinement"
)

// #region export

// ExportJSONL writes one training pair per line, replacing path.
func ExportJSONL(pairs []TrainingPair, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for i, p := range pairs {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encode pair %d: %w", i, err)
		}
	}
	return f.Close()
}

// #endregion export

// #region trainer

// Trainer consumes training pairs and reports metrics.
type Trainer interface {
	Train(ctx context.Context, pairs []TrainingPair) (map[string]float64, error)
}

// EngineEvaluator is a Trainer that does not train: it scores the current
// engine on the positive items, which gives a baseline before an external
// fine-tuning run.
type EngineEvaluator struct {
	Engine   inference.Engine
	Decoding decoder.Strategy
}

// Train predicts each positive item and reports accuracy against its output.
func (e EngineEvaluator) Train(ctx context.Context, pairs []TrainingPair) (map[string]float64, error) {
	var preds, labels []string
	for i, p := range pairs {
		item := p.Items()[0]
		res, err := e.Engine.Predict(ctx, inference.Request{
			ContextID: fmt.Sprintf("pair_%d", i),
			Text:      item.Input,
			Decoding:  e.Decoding,
		})
		if err != nil {
			return nil, fmt.Errorf("evaluate pair %d: %w", i, err)
		}
		preds = append(preds, string(res.PredictedLabel))
		labels = append(labels, item.Output)
	}
	return map[string]float64{
		"accuracy": eval.Accuracy(preds, labels),
		"pairs":    float64(len(pairs)),
	}, nil
}

// #endregion trainer

// #region loop

// Loop records errors, builds training pairs and trains when a sink is set.
type Loop struct {
	errors    *logging.ErrorLogger
	generator Generator
	trainer   Trainer
	logger    *zap.Logger
}

// NewLoop creates a loop. errs and trainer may be nil.
func NewLoop(errs *logging.ErrorLogger, generator Generator, trainer Trainer, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{errors: errs, generator: generator, trainer: trainer, logger: logger.Named("metaloop")}
}

// Run logs every error, generates pairs and trains. Metrics are empty when
// no trainer is configured.
func (l *Loop) Run(ctx context.Context, errs []logging.ErrorRecord, corrections []refinement.CorrectionProposal) ([]TrainingPair, map[string]float64, error) {
	if l.errors != nil {
		logged := make([]logging.ErrorRecord, len(errs))
		for i, rec := range errs {
			stored, err := l.errors.Log(rec)
			if err != nil {
				return nil, nil, fmt.Errorf("log error %d: %w", i, err)
			}
			logged[i] = stored
		}
		errs = logged
	}

	pairs, err := l.generator.Generate(errs, corrections)
	if err != nil {
		return nil, nil, err
	}
	l.logger.Info("pairs generated",
		zap.Int("errors", len(errs)),
		zap.Int("corrections", len(corrections)),
		zap.Int("pairs", len(pairs)),
		zap.String("strategy", string(l.generator.Strategy)))

	metrics := map[string]float64{}
	if l.trainer != nil && len(pairs) > 0 {
		metrics, err = l.trainer.Train(ctx, pairs)
		if err != nil {
			return pairs, nil, fmt.Errorf("train: %w", err)
		}
	}
	return pairs, metrics, nil
}

// #endregion loop
