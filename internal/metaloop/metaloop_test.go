package metaloop

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/logging"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
	"github.com/danielpatrickdp/citeloop/internal/refinement"
)

// #region fixtures
func errorFor(id string, predicted prediction.Label, prompt string) logging.ErrorRecord {
	return logging.ErrorRecord{
		ContextID:      id,
		ErrorType:      logging.LowConfidence,
		SourceModule:   logging.SourceClassifier,
		PredictedLabel: logging.Ptr(predicted),
		Confidence:     logging.Ptr(0.4),
		Reason:         "low confidence",
		Meta:           map[string]any{"prompt": prompt},
	}
}

func correctionFor(id string, label prediction.Label, delta float64, accepted bool) refinement.CorrectionProposal {
	return refinement.CorrectionProposal{
		ContextID:        id,
		OriginalLabel:    prediction.Secondary,
		CorrectedLabel:   label,
		ConfidenceDelta:  delta,
		CorrectionReason: "the authors collected it",
		Accepted:         accepted,
		Metadata:         map[string]any{"question": "Who collected the data?"},
	}
}

type fixedEngine struct {
	inference.Engine
	label prediction.Label
	texts []string
}

func (f *fixedEngine) Predict(_ context.Context, req inference.Request) (inference.Result, error) {
	f.texts = append(f.texts, req.Text)
	return inference.Result{ContextID: req.ContextID, PredictedLabel: f.label, Confidence: 0.8}, nil
}

// #endregion fixtures

// #region filter-tests
func TestSelect_RequiresFlipAndAcceptance(t *testing.T) {
	errs := []logging.ErrorRecord{
		errorFor("flip", prediction.Secondary, "ctx a"),
		errorFor("same", prediction.Primary, "ctx b"),
		errorFor("rejected", prediction.Secondary, "ctx c"),
		errorFor("orphan", prediction.Secondary, "ctx d"),
	}
	corrections := []refinement.CorrectionProposal{
		correctionFor("flip", prediction.Primary, 0.3, true),
		correctionFor("same", prediction.Primary, 0.3, true),
		correctionFor("rejected", prediction.Primary, 0.3, false),
	}

	got := DefaultPairFilter().Select(errs, corrections)
	require.Len(t, got, 1)
	assert.Equal(t, "flip", got[0].Error.ContextID)

	loose := PairFilter{}.Select(errs, corrections)
	assert.Len(t, loose, 2)
}

func TestSelect_ConfidenceFloorAndFirstAcceptedWins(t *testing.T) {
	errs := []logging.ErrorRecord{errorFor("c1", prediction.Secondary, "ctx")}
	corrections := []refinement.CorrectionProposal{
		correctionFor("c1", prediction.Primary, 0.05, true),
		correctionFor("c1", prediction.None, 0.5, true),
	}

	got := DefaultPairFilter().Select(errs, corrections)
	require.Len(t, got, 1)
	assert.Equal(t, prediction.Primary, got[0].Correction.CorrectedLabel)

	strict := PairFilter{MinConfidenceDelta: 0.1, RequireLabelFlip: true}
	assert.Empty(t, strict.Select(errs, corrections))
}

// #endregion filter-tests

// #region build-tests
func TestAssemble(t *testing.T) {
	assert.Equal(t, "Q: why?\nA: because\n\nctx", Assemble("ctx", "why?", "because"))
	assert.Equal(t, "ctx", Assemble("  ctx ", "", "because"))
	assert.Equal(t, "", Assemble("", "", ""))
}

func TestBuild_Strategies(t *testing.T) {
	m := Match{
		Error:      errorFor("c1", prediction.Secondary, "We sequenced samples."),
		Correction: correctionFor("c1", prediction.Primary, 0.3, true),
	}

	direct, err := Build(StrategyDirect, m)
	require.NoError(t, err)
	want := TrainingPair{Kind: KindDirect, Item: &PromptPair{
		Instruction: classifyInstruction,
		Input:       "We sequenced samples.",
		Output:      "primary",
	}}
	if diff := cmp.Diff(want, direct); diff != "" {
		t.Errorf("direct pair mismatch (-want +got):\n%s", diff)
	}

	qa, err := Build(StrategyQA, m)
	require.NoError(t, err)
	assert.Equal(t, qaInstruction, qa.Item.Instruction)
	assert.Equal(t, "Q: Who collected the data?\nA: the authors collected it\n\nWe sequenced samples.", qa.Item.Input)

	contrastive, err := Build(StrategyContrastive, m)
	require.NoError(t, err)
	require.Equal(t, KindContrastive, contrastive.Kind)
	assert.Equal(t, "primary", contrastive.Positive.Output)
	assert.Equal(t, "secondary", contrastive.Negative.Output)
	assert.Equal(t, contrastive.Positive.Input, contrastive.Negative.Input)
	assert.Len(t, contrastive.Items(), 2)

	_, err = Build(Strategy("rlhf"), m)
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy(" QA ")
	require.NoError(t, err)
	assert.Equal(t, StrategyQA, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, s)

	_, err = ParseStrategy("dpo")
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

// #endregion build-tests

// #region export-tests
func TestExportJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "pairs.jsonl")
	pairs := []TrainingPair{
		{Kind: KindDirect, Item: &PromptPair{Instruction: "i", Input: "a < b", Output: "none"}},
		{Kind: KindContrastive, Positive: &PromptPair{Output: "primary"}, Negative: &PromptPair{Output: "secondary"}},
	}
	require.NoError(t, ExportJSONL(pairs, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []TrainingPair
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var p TrainingPair
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		got = append(got, p)
	}
	require.NoError(t, sc.Err())
	if diff := cmp.Diff(pairs, got); diff != "" {
		t.Errorf("exported pairs mismatch (-want +got):\n%s", diff)
	}
}

// #endregion export-tests

// #region loop-tests
func TestLoop_LogsErrorsAndBuildsPairs(t *testing.T) {
	storage, err := logging.NewStorage(t.TempDir())
	require.NoError(t, err)
	errLog := logging.NewErrorLogger(storage, nil, nil)

	errs := []logging.ErrorRecord{
		errorFor("c1", prediction.Secondary, "ctx one"),
		errorFor("c2", prediction.None, "ctx two"),
	}
	corrections := []refinement.CorrectionProposal{correctionFor("c1", prediction.Primary, 0.3, true)}

	loop := NewLoop(errLog, Generator{Filter: DefaultPairFilter(), Strategy: StrategyDirect}, nil, nil)
	pairs, metrics, err := loop.Run(context.Background(), errs, corrections)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "ctx one", pairs[0].Item.Input)
	assert.Empty(t, metrics)

	logged, err := errLog.Load("")
	require.NoError(t, err)
	assert.Len(t, logged, 2)
	assert.Empty(t, errs[0].ErrorID, "caller records are not mutated")
}

func TestLoop_TrainsWithEvaluator(t *testing.T) {
	eng := &fixedEngine{label: prediction.Primary}
	errs := []logging.ErrorRecord{
		errorFor("c1", prediction.Secondary, "ctx one"),
		errorFor("c2", prediction.Secondary, "ctx two"),
	}
	corrections := []refinement.CorrectionProposal{
		correctionFor("c1", prediction.Primary, 0.3, true),
		correctionFor("c2", prediction.None, 0.2, true),
	}

	loop := NewLoop(nil, Generator{Filter: DefaultPairFilter(), Strategy: StrategyContrastive}, EngineEvaluator{Engine: eng}, nil)
	pairs, metrics, err := loop.Run(context.Background(), errs, corrections)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
	assert.InDelta(t, 0.5, metrics["accuracy"], 1e-9)
	assert.Equal(t, 2.0, metrics["pairs"])
	assert.Equal(t, []string{"ctx one", "ctx two"}, eng.texts)
}

// #endregion loop-tests
