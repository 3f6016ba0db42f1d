package refinement

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/citeloop/internal/gate"
	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region mocks
type scriptedEngine struct {
	inference.Engine
	requests []inference.Request
	results  []inference.Result
	failAt   int // 1-based call that fails; 0 never fails
}

func (s *scriptedEngine) Predict(_ context.Context, req inference.Request) (inference.Result, error) {
	s.requests = append(s.requests, req)
	n := len(s.requests)
	if s.failAt == n {
		return inference.Result{}, errors.New("model offline")
	}
	res := s.results[(n-1)%len(s.results)]
	res.ContextID = req.ContextID
	return res, nil
}

func fixedIDs() func() string {
	n := 0
	return func() string {
		n++
		return "qst_" + strings.Repeat(string(rune('0'+n)), 8)
	}
}

// #endregion mocks

// #region fixtures
var surveyUnit = prediction.ContextUnit{
	ContextID: "ctx_7",
	DocID:     "doc_1",
	Text:      "The survey data from the survey team shows survey results and data.",
	Source:    prediction.SourceInfo{Section: "methods"},
}

var lowSecondary = prediction.FinalPrediction{
	ContextID:  "ctx_7",
	FinalLabel: prediction.Secondary,
	Confidence: 0.6,
}

// #endregion fixtures

// #region focus-tests
func TestFocusExtractor_FrequencyThenFirstSeen(t *testing.T) {
	f := NewFocusExtractor(nil)
	assert.Equal(t, []string{"survey", "data"}, f.Extract(surveyUnit.Text, 2))
	assert.Equal(t, []string{"survey", "data", "team", "shows"}, f.Extract(surveyUnit.Text, 4))
}

func TestFocusExtractor_DropsShortAndStopwords(t *testing.T) {
	f := NewFocusExtractor(nil)
	assert.Empty(t, f.Extract("The cat and the dog with that from this", 2))
	assert.Empty(t, f.Extract("anything", 0))
}

func TestFocusExtractor_CustomStopwords(t *testing.T) {
	f := NewFocusExtractor([]string{"SURVEY"})
	assert.Equal(t, []string{"data", "from"}, f.Extract(surveyUnit.Text, 2))
}

// #endregion focus-tests

// #region questioner-tests
func TestQuestioner_LoopOrderTypeThenFocus(t *testing.T) {
	q := NewQuestioner(DefaultQuestionerConfig())
	q.newID = fixedIDs()

	items := q.Generate(surveyUnit, lowSecondary)
	require.Len(t, items, 8)

	var types, texts []string
	for _, it := range items {
		types = append(types, it.QuestionType)
		texts = append(texts, it.QuestionText)
	}
	assert.Equal(t, []string{
		ClassificationChallenge, ClassificationChallenge,
		SemanticContrast, SemanticContrast,
		DetailCheck, DetailCheck,
		SelfReflection, SelfReflection,
	}, types)
	assert.Equal(t, "Is the reference to survey truly a secondary citation, or does it play another role?", texts[0])
	assert.Equal(t, "Is the reference to data truly a secondary citation, or does it play another role?", texts[1])
	assert.Equal(t, "Can you justify labeling data as secondary?", texts[7])

	want := SelfQuestionItem{
		ContextID:       "ctx_7",
		QuestionID:      "qst_11111111",
		QuestionText:    texts[0],
		QuestionType:    ClassificationChallenge,
		ConfidenceLevel: 0.6,
		Source:          QuestionSource{DocID: "doc_1", Section: "methods", OriginalPrediction: prediction.Secondary},
	}
	if diff := cmp.Diff(want, items[0]); diff != "" {
		t.Errorf("first question mismatch (-want +got):\n%s", diff)
	}
}

func TestQuestioner_NoFocusNoQuestions(t *testing.T) {
	q := NewQuestioner(DefaultQuestionerConfig())
	unit := surveyUnit
	unit.Text = "the and for it is"
	assert.Empty(t, q.Generate(unit, lowSecondary))
}

func TestQuestioner_RealIDs(t *testing.T) {
	items := NewQuestioner(DefaultQuestionerConfig()).Generate(surveyUnit, lowSecondary)
	seen := map[string]bool{}
	for _, it := range items {
		assert.Regexp(t, `^qst_[0-9a-f]{8}$`, it.QuestionID)
		assert.NotContains(t, it.QuestionText, "${")
		seen[it.QuestionID] = true
	}
	assert.Len(t, seen, len(items))
}

func TestRender_LeavesUnknownPlaceholders(t *testing.T) {
	assert.Equal(t, "cohort as none (${other})", Render("${focus} as ${prediction} (${other})", "cohort", prediction.None))
}

// #endregion questioner-tests

// #region corrector-tests
func TestReaskPrompt(t *testing.T) {
	assert.Equal(t, "ctx text\n\nQuestion: why?\nAnswer:", ReaskPrompt("ctx text", "why?"))
}

func TestCorrector_AcceptsConfidentFlip(t *testing.T) {
	eng := &scriptedEngine{results: []inference.Result{{PredictedLabel: prediction.Primary, Confidence: 0.9, RawOutput: "primary"}}}
	c := NewCorrector(eng, DefaultCorrectorConfig(), nil, nil)

	question := SelfQuestionItem{ContextID: "ctx_7", QuestionID: "qst_a", QuestionText: "Is it primary?"}
	p, err := c.Correct(context.Background(), surveyUnit, question, lowSecondary)
	require.NoError(t, err)

	assert.True(t, p.Accepted)
	assert.InDelta(t, 0.3, p.ConfidenceDelta, 1e-9)
	assert.Equal(t, gate.ReasonAccepted, p.CorrectionReason)
	assert.Equal(t, prediction.Secondary, p.OriginalLabel)
	assert.Equal(t, prediction.Primary, p.CorrectedLabel)
	assert.Equal(t, "qst_a", p.QuestionID)

	require.Len(t, eng.requests, 1)
	assert.Equal(t, "ctx_7", eng.requests[0].ContextID)
	assert.Equal(t, ReaskPrompt(surveyUnit.Text, "Is it primary?"), eng.requests[0].Text)
	assert.Empty(t, eng.requests[0].Prompt)
	assert.Equal(t, eng.requests[0].Text, p.Metadata["reask_prompt"])
	assert.Equal(t, "primary", p.Metadata["raw_response"])
}

func TestCorrector_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		label  prediction.Label
		conf   float64
		reason string
	}{
		{"unchanged", prediction.Secondary, 0.95, gate.ReasonLabelUnchanged},
		{"small gain", prediction.Primary, 0.7, gate.ReasonDeltaTooLow},
		{"below floor", prediction.None, 0.78, gate.ReasonBelowConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &scriptedEngine{results: []inference.Result{{PredictedLabel: tt.label, Confidence: tt.conf}}}
			orig := lowSecondary
			orig.Confidence = 0.6
			if tt.name == "below floor" {
				orig.Confidence = 0.5
			}
			p, err := NewCorrector(eng, DefaultCorrectorConfig(), nil, nil).
				Correct(context.Background(), surveyUnit, SelfQuestionItem{ContextID: "ctx_7"}, orig)
			require.NoError(t, err)
			assert.False(t, p.Accepted)
			assert.Equal(t, tt.reason, p.CorrectionReason)
			assert.InDelta(t, tt.conf-orig.Confidence, p.ConfidenceDelta, 1e-12)
		})
	}
}

func TestCorrector_InferenceError(t *testing.T) {
	eng := &scriptedEngine{results: []inference.Result{{}}, failAt: 1}
	_, err := NewCorrector(eng, DefaultCorrectorConfig(), nil, nil).
		Correct(context.Background(), surveyUnit, SelfQuestionItem{QuestionID: "qst_x"}, lowSecondary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qst_x")
}

// #endregion corrector-tests

// #region log-tests
func TestCorrectionLog_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "corrections.jsonl")
	log, err := NewCorrectionLog(path)
	require.NoError(t, err)

	eng := &scriptedEngine{results: []inference.Result{
		{PredictedLabel: prediction.Primary, Confidence: 0.9},
		{PredictedLabel: prediction.Secondary, Confidence: 0.9},
	}}
	c := NewCorrector(eng, DefaultCorrectorConfig(), log, nil)
	for _, id := range []string{"qst_1", "qst_2"} {
		_, err := c.Correct(context.Background(), surveyUnit, SelfQuestionItem{ContextID: "ctx_7", QuestionID: id}, lowSecondary)
		require.NoError(t, err)
	}

	got, err := LoadCorrections(log.Path())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Accepted)
	assert.False(t, got[1].Accepted)
	assert.Equal(t, "qst_2", got[1].QuestionID)
	assert.InDelta(t, 0.9, got[0].Metadata["corrected_confidence"], 1e-12)
}

func TestLoadCorrections_MissingFile(t *testing.T) {
	got, err := LoadCorrections(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

// #endregion log-tests

// #region engine-tests
func TestEngine_ReturnsEveryProposal(t *testing.T) {
	eng := &scriptedEngine{results: []inference.Result{
		{PredictedLabel: prediction.Secondary, Confidence: 0.7},
		{PredictedLabel: prediction.Primary, Confidence: 0.95},
		{PredictedLabel: prediction.None, Confidence: 0.9},
	}}
	e := NewEngine(NewQuestioner(DefaultQuestionerConfig()), NewCorrector(eng, DefaultCorrectorConfig(), nil, nil), nil)

	proposals, err := e.Run(context.Background(), surveyUnit, lowSecondary)
	require.NoError(t, err)
	require.Len(t, proposals, 8)
	assert.Len(t, eng.requests, 8)

	accepted := 0
	for _, p := range proposals {
		if p.Accepted {
			accepted++
		}
	}
	assert.Greater(t, accepted, 1)

	first, ok := FirstAccepted(proposals)
	require.True(t, ok)
	assert.Equal(t, proposals[1], first)
}

func TestEngine_StopsOnInferenceError(t *testing.T) {
	eng := &scriptedEngine{results: []inference.Result{{PredictedLabel: prediction.Primary, Confidence: 0.9}}, failAt: 3}
	e := NewEngine(NewQuestioner(DefaultQuestionerConfig()), NewCorrector(eng, DefaultCorrectorConfig(), nil, nil), nil)

	proposals, err := e.Run(context.Background(), surveyUnit, lowSecondary)
	require.Error(t, err)
	assert.Len(t, proposals, 2)
}

func TestFirstAccepted_None(t *testing.T) {
	_, ok := FirstAccepted([]CorrectionProposal{{Accepted: false}})
	assert.False(t, ok)
	_, ok = FirstAccepted(nil)
	assert.False(t, ok)
}

// #endregion engine-tests
