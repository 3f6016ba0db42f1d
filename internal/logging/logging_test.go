package logging

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
	"github.com/danielpatrickdp/citeloop/internal/refinement"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, EnsureMirror(db))
	return db
}

func newTestLogger(t *testing.T, db *sql.DB) *ErrorLogger {
	t.Helper()
	st, err := NewStorage(filepath.Join(t.TempDir(), "errors"))
	require.NoError(t, err)
	l := NewErrorLogger(st, db, nil)
	l.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 45, 999, time.UTC) }
	return l
}

func lines(t *testing.T, path string) int {
	t.Helper()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err, "read %s", path)
	return strings.Count(string(b), "\n")
}

func label(l prediction.Label) *prediction.Label { return &l }

// #endregion helpers

// #region classify-tests
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		rec  ErrorRecord
		want ErrorType
	}{
		{"label flip", ErrorRecord{OriginalLabel: label(prediction.Primary), PredictedLabel: label(prediction.None)}, ClassificationError},
		{"same labels fall through", ErrorRecord{OriginalLabel: label(prediction.Primary), PredictedLabel: label(prediction.Primary)}, Other},
		{"below threshold", ErrorRecord{Confidence: Ptr(0.4), ConfidenceThreshold: Ptr(0.8)}, LowConfidence},
		{"at threshold", ErrorRecord{Confidence: Ptr(0.8), ConfidenceThreshold: Ptr(0.8)}, Other},
		{"inconsistent flag", ErrorRecord{Meta: map[string]any{FlagInconsistent: true}}, InconsistentOutput},
		{"refinement flag", ErrorRecord{Meta: map[string]any{FlagRefinementFailed: true}}, RefinementFailed},
		{"decoder flag", ErrorRecord{Meta: map[string]any{FlagDecoderError: "bad label"}}, OutputDecoderError},
		{"false flag", ErrorRecord{Meta: map[string]any{FlagInconsistent: false}}, Other},
		{"flip beats confidence", ErrorRecord{
			OriginalLabel: label(prediction.Primary), PredictedLabel: label(prediction.Secondary),
			Confidence: Ptr(0.1), ConfidenceThreshold: Ptr(0.9),
		}, ClassificationError},
		{"empty", ErrorRecord{}, Other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.rec))
		})
	}
}

func TestParseErrorType(t *testing.T) {
	got, err := ParseErrorType("refinement_failed")
	require.NoError(t, err)
	assert.Equal(t, RefinementFailed, got)

	_, err = ParseErrorType("fatal")
	assert.Error(t, err)
}

// #endregion classify-tests

// #region logger-tests
func TestLog_AssignsIDTimestampAndType(t *testing.T) {
	l := newTestLogger(t, nil)

	rec, err := l.Log(ErrorRecord{
		ContextID:           "ctx_1",
		SourceModule:        SourceClassifier,
		Confidence:          Ptr(0.4),
		ConfidenceThreshold: Ptr(0.8),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.ErrorID, "err_"), rec.ErrorID)
	assert.Len(t, rec.ErrorID, 36)
	assert.Equal(t, "2026-03-01T12:30:45Z", rec.Timestamp)
	assert.Equal(t, LowConfidence, rec.ErrorType)
}

func TestLog_KeepsExplicitType(t *testing.T) {
	l := newTestLogger(t, nil)
	rec, err := l.Log(ErrorRecord{
		ContextID:      "ctx_2",
		ErrorType:      RefinementFailed,
		OriginalLabel:  label(prediction.Primary),
		PredictedLabel: label(prediction.None),
	})
	require.NoError(t, err)
	assert.Equal(t, RefinementFailed, rec.ErrorType, "explicit type overwritten")
	assert.Equal(t, SourceOther, rec.SourceModule)
}

func TestLog_WritesTypeFiles(t *testing.T) {
	l := newTestLogger(t, nil)
	dir := l.Storage().Dir()

	for _, rec := range []ErrorRecord{
		{ContextID: "a", ErrorType: ClassificationError},
		{ContextID: "b", ErrorType: InconsistentOutput},
		{ContextID: "c", ErrorType: RefinementFailed},
		{ContextID: "d", ErrorType: LowConfidence},
		{ContextID: "e", ErrorType: OutputDecoderError},
	} {
		_, err := l.Log(rec)
		require.NoError(t, err, rec.ContextID)
	}

	want := map[string]int{
		AllErrorsFile:          5,
		ClassificationFile:     1,
		UnstableOutputsFile:    1,
		RefinementFailuresFile: 1,
	}
	for name, n := range want {
		assert.Equal(t, n, lines(t, filepath.Join(dir, name)), name)
	}
}

func TestLog_NullOptionalFields(t *testing.T) {
	l := newTestLogger(t, nil)
	_, err := l.Log(ErrorRecord{ContextID: "ctx", ErrorType: Other})
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(l.Storage().Dir(), AllErrorsFile))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, key := range []string{"original_label", "predicted_label", "refined_label", "confidence", "confidence_threshold"} {
		require.Contains(t, raw, key)
		assert.Nil(t, raw[key], key)
	}
	assert.Equal(t, "other", raw["error_type"])
}

// #endregion logger-tests

// #region storage-tests
func TestStorageLoad(t *testing.T) {
	l := newTestLogger(t, nil)
	for _, rec := range []ErrorRecord{
		{ContextID: "a", ErrorType: LowConfidence},
		{ContextID: "b", ErrorType: RefinementFailed},
		{ContextID: "c", ErrorType: LowConfidence},
	} {
		_, err := l.Log(rec)
		require.NoError(t, err)
	}

	all, err := l.Load("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	low, err := l.Load(LowConfidence)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "a", low[0].ContextID)
	assert.Equal(t, "c", low[1].ContextID)

	failed, err := l.Load(RefinementFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].ContextID)

	none, err := l.Load(ClassificationError)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStorageLoad_DedicatedFileIsAuthoritative(t *testing.T) {
	st, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	line := `{"error_id":"err_x","context_id":"x","error_type":"refinement_failed","source_module":"other","reason":"","timestamp":"2026-01-01T00:00:00Z","meta":{}}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), RefinementFailuresFile), []byte(line), 0o644))

	recs, err := st.Load(RefinementFailed)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	all, err := st.Load("")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStorageLoad_RejectsUnknownType(t *testing.T) {
	st, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	line := `{"error_id":"e","context_id":"x","error_type":"fatal"}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), AllErrorsFile), []byte(line), 0o644))

	_, err = st.Load("")
	assert.Error(t, err)
}

// #endregion storage-tests

// #region query-tests
func TestQuery_CountByType(t *testing.T) {
	l := newTestLogger(t, nil)
	for _, typ := range []ErrorType{LowConfidence, LowConfidence, InconsistentOutput} {
		_, err := l.Log(ErrorRecord{ContextID: "c", ErrorType: typ})
		require.NoError(t, err)
	}
	q := NewQuery(l.Storage())
	counts, err := q.CountByType()
	require.NoError(t, err)
	assert.Equal(t, map[ErrorType]int{LowConfidence: 2, InconsistentOutput: 1}, counts)

	unstable, err := q.FilterByCategory(InconsistentOutput)
	require.NoError(t, err)
	assert.Len(t, unstable, 1)
}

// #endregion query-tests

// #region mirror-tests
func TestMirror_RecordsEveryLog(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	l := newTestLogger(t, db)

	rec, err := l.Log(ErrorRecord{
		ContextID:           "ctx_9",
		Confidence:          Ptr(0.3),
		ConfidenceThreshold: Ptr(0.7),
		Reason:              "below threshold",
	})
	require.NoError(t, err)

	var errorType, createdAt string
	var original sql.NullString
	var conf sql.NullFloat64
	err = db.QueryRow(`SELECT error_type, original_label, confidence, created_at FROM error_log WHERE error_id = ?`, rec.ErrorID).
		Scan(&errorType, &original, &conf, &createdAt)
	require.NoError(t, err)
	assert.Equal(t, string(LowConfidence), errorType)
	assert.False(t, original.Valid, "original_label should be NULL")
	assert.Equal(t, sql.NullFloat64{Float64: 0.3, Valid: true}, conf)
	assert.Equal(t, rec.Timestamp, createdAt)

	counts, err := MirrorCounts(db)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[LowConfidence])
}

func TestMirror_FailureDoesNotLoseRecord(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error
	l := newTestLogger(t, db)

	_, err := l.Log(ErrorRecord{ContextID: "ctx", ErrorType: LowConfidence})
	require.NoError(t, err, "file log should succeed")
	assert.Equal(t, 1, lines(t, filepath.Join(l.Storage().Dir(), AllErrorsFile)))
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "hello", nullIfEmpty("hello"))
	assert.Nil(t, nullLabel(nil))
	assert.Nil(t, nullFloat(nil))
}

// #endregion mirror-tests

// #region trace-tests
func TestTraceFromResult(t *testing.T) {
	res := inference.Result{
		ContextID:      "ctx_4",
		PredictedLabel: prediction.None,
		Confidence:     0.35,
		RawOutput:      "none",
		Prompt:         "Label:",
	}
	rec := TraceFromResult(res, label(prediction.Primary), Ptr(0.7), "flip")
	assert.Equal(t, Other, rec.ErrorType)
	assert.Equal(t, SourceClassifier, rec.SourceModule)
	assert.Equal(t, ClassificationError, Classify(rec))
	assert.Equal(t, "Label:", rec.Meta["prompt"])
	assert.Equal(t, "none", rec.Meta["raw_output"])
}

func TestTraceFromProposal(t *testing.T) {
	p := refinement.CorrectionProposal{
		ContextID:           "ctx_5",
		OriginalLabel:       prediction.Secondary,
		CorrectedLabel:      prediction.Secondary,
		CorrectedConfidence: 0.5,
	}
	rec := TraceFromProposal(p, "")
	assert.Equal(t, RefinementFailed, rec.ErrorType)
	assert.Equal(t, SourceSelfCorrector, rec.SourceModule)
	assert.Equal(t, "Correction proposal did not resolve issue", rec.Reason)

	l := newTestLogger(t, nil)
	_, err := l.Log(rec)
	assert.NoError(t, err)
}

// #endregion trace-tests
