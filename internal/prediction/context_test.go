package prediction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region label-tests
func TestParseLabel(t *testing.T) {
	tests := []struct {
		in    string
		want  Label
		valid bool
	}{
		{"primary", Primary, true},
		{"  Secondary ", Secondary, true},
		{"NONE", None, true},
		{"maybe", Label("maybe"), false},
		{"", Label(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLabel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestWithConsistency_DoesNotMutateOriginal(t *testing.T) {
	p := FinalPrediction{ContextID: "c1", FinalLabel: Primary, Confidence: 0.9}
	q := p.WithConsistency(false, 0.4)

	assert.Nil(t, p.IsConsistent)
	require.NotNil(t, q.IsConsistent)
	assert.False(t, *q.IsConsistent)
	assert.InDelta(t, 0.4, *q.PerturbationScore, 1e-9)
}

// #endregion label-tests

// #region load-tests
func TestLoadContextUnits_CollectsLineErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "context.jsonl")
	content := `{"context_id":"c1","doc_id":"d1","text":"Data were collected.","source":{"section":"methods","start_sentence_idx":0,"end_sentence_idx":1,"original_paragraph_id":0},"token_count":4}

not json
{"context_id":"c2","doc_id":"d1","text":"   ","source":{"section":"results"},"token_count":1}
{"context_id":"c3","doc_id":"d2","text":"Too long","source":{"section":"results"},"token_count":999}
{"context_id":"c4","doc_id":"d2","text":"We reuse CDC statistics.","source":{"section":"intro"},"token_count":5}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	units, lineErrs, err := LoadContextUnits(path, 512)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "c1", units[0].ContextID)
	assert.Equal(t, "methods", units[0].Source.Section)
	assert.Equal(t, "c4", units[1].ContextID)

	require.Len(t, lineErrs, 3)
	assert.Equal(t, 3, lineErrs[0].Line)
	assert.Equal(t, 4, lineErrs[1].Line)
	assert.Equal(t, 5, lineErrs[2].Line)
}

func TestLoadContextUnits_MissingFile(t *testing.T) {
	_, _, err := LoadContextUnits(filepath.Join(t.TempDir(), "nope.jsonl"), 0)
	require.Error(t, err)
}

// #endregion load-tests
