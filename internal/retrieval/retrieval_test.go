package retrieval

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/citeloop/internal/codec"
	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region mocks
type mapEncoder struct {
	dim   int
	vecs  map[string][]float32
	err   error
	calls atomic.Int32
}

func (m *mapEncoder) Dimensions() int { return m.dim }

func (m *mapEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.vecs[t]
		if !ok {
			v = make([]float32, m.dim)
		}
		out[i] = v
	}
	return out, nil
}

// numberEncoder encodes "tN" as the one-dimensional vector [N].
type numberEncoder struct {
	failOn string
	calls  atomic.Int32
}

func (n *numberEncoder) Dimensions() int { return 1 }

func (n *numberEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	n.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if t == n.failOn {
			return nil, errors.New("encode failed")
		}
		v, err := strconv.Atoi(strings.TrimPrefix(t, "t"))
		if err != nil {
			return nil, err
		}
		out[i] = []float32{float32(v)}
	}
	return out, nil
}

type fakeEmbedder struct {
	last codec.EmbedRequest
}

func (f *fakeEmbedder) Embed(_ context.Context, req codec.EmbedRequest) ([][]float32, error) {
	f.last = req
	out := make([][]float32, len(req.Texts))
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

// #endregion mocks

// #region fixtures
func memoryFixture(t *testing.T) (*mapEncoder, *Indexer, []Metadata) {
	t.Helper()
	enc := &mapEncoder{dim: 2, vecs: map[string][]float32{
		"alpha": {1, 0},
		"beta":  {0.9, 0.1},
		"gamma": {0, 1},
		"delta": {0.7, 0.7},
		"q":     {1, 0},
	}}
	units := []LabeledUnit{
		{ContextUnit: unit("c0", "d1", "alpha", "methods"), Label: prediction.Primary},
		{ContextUnit: unit("c1", "d2", "beta", "results"), Label: prediction.Secondary},
		{ContextUnit: unit("c2", "d1", "gamma", "methods"), Label: prediction.None},
		{ContextUnit: unit("c3", "d3", "delta", "intro")},
	}
	ix, meta, err := NewMemoryBuilder(enc, Cosine, nil).Build(context.Background(), units)
	require.NoError(t, err)
	return enc, ix, meta
}

func unit(id, doc, text, section string) prediction.ContextUnit {
	return prediction.ContextUnit{ContextID: id, DocID: doc, Text: text, Source: prediction.SourceInfo{Section: section}}
}

func contextIDs(items []ResultItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ContextID
	}
	return ids
}

// #endregion fixtures

// #region builder-tests
func TestMemoryBuilder_Build(t *testing.T) {
	_, ix, meta := memoryFixture(t)
	assert.Equal(t, 4, ix.Len())
	require.Len(t, meta, 4)
	assert.Equal(t, "beta", meta[1].String(KeyText))
	assert.Equal(t, "secondary", meta[1].String(KeyLabel))
	_, hasLabel := meta[3][KeyLabel]
	assert.False(t, hasLabel)
}

func TestMemoryBuilder_BuildAndSave(t *testing.T) {
	enc, _, _ := memoryFixture(t)
	store := NewFileStorage(t.TempDir()+"/m.index", t.TempDir()+"/m.json")
	n, err := NewMemoryBuilder(enc, Cosine, nil).BuildAndSave(context.Background(), []LabeledUnit{
		{ContextUnit: unit("c0", "d1", "alpha", "methods")},
	}, store)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r, err := FromStorage(context.Background(), enc, store, DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c0"}, contextIDs(r.Retrieve(context.Background(), "q", 5, nil)))
}

// #endregion builder-tests

// #region retrieve-tests
func TestRetrieve_OrdersBySimilarity(t *testing.T) {
	enc, ix, meta := memoryFixture(t)
	r := NewRetriever(enc, ix, meta, DefaultConfig(), nil)

	got := r.Retrieve(context.Background(), "q", 2, nil)
	assert.Equal(t, []string{"c0", "c1"}, contextIDs(got))
	assert.Equal(t, "q", got[0].QueryText)
	assert.Equal(t, "alpha", got[0].MatchedContext)
	assert.Equal(t, "d1", got[0].DocID)
	assert.Equal(t, "methods", got[0].Section)
	assert.InDelta(t, 1.0, got[0].SimilarityScore, 1e-6)
}

func TestRetrieve_Filters(t *testing.T) {
	enc, ix, meta := memoryFixture(t)
	r := NewRetriever(enc, ix, meta, DefaultConfig(), nil)

	got := r.Retrieve(context.Background(), "q", 2, map[string]any{KeySection: "methods"})
	assert.Equal(t, []string{"c0", "c2"}, contextIDs(got))

	got = r.Retrieve(context.Background(), "q", 5, map[string]any{KeyDocID: "d2"})
	assert.Equal(t, []string{"c1"}, contextIDs(got))

	got = r.Retrieve(context.Background(), "q", 5, map[string]any{"journal": "x"})
	assert.Empty(t, got)
}

func TestRetrieve_SkipsIDsWithoutMetadata(t *testing.T) {
	enc, ix, meta := memoryFixture(t)
	r := NewRetriever(enc, ix, meta[:2], DefaultConfig(), nil)

	got := r.Retrieve(context.Background(), "q", 5, nil)
	assert.Equal(t, []string{"c0", "c1"}, contextIDs(got))
}

func TestRetrieve_DegradesToEmpty(t *testing.T) {
	enc, ix, meta := memoryFixture(t)

	t.Run("encoder error", func(t *testing.T) {
		bad := &mapEncoder{dim: 2, err: errors.New("offline")}
		r := NewRetriever(bad, ix, meta, DefaultConfig(), nil)
		got := r.Retrieve(context.Background(), "q", 3, nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
	t.Run("nil index", func(t *testing.T) {
		r := NewRetriever(enc, nil, nil, DefaultConfig(), nil)
		assert.Empty(t, r.Retrieve(context.Background(), "q", 3, nil))
	})
	t.Run("dimension mismatch", func(t *testing.T) {
		wide := &mapEncoder{dim: 3}
		r := NewRetriever(wide, ix, meta, DefaultConfig(), nil)
		assert.Empty(t, r.Retrieve(context.Background(), "q", 3, nil))
	})
}

func TestExemplars_LabelledNeighboursOnly(t *testing.T) {
	enc, ix, meta := memoryFixture(t)
	r := NewRetriever(enc, ix, meta, DefaultConfig(), nil)

	got := r.Exemplars(context.Background(), "q", "c0", 2)
	assert.Equal(t, []inference.Exemplar{
		{Text: "beta", Label: prediction.Secondary},
		{Text: "gamma", Label: prediction.None},
	}, got)

	assert.Nil(t, r.Exemplars(context.Background(), "q", "", 0))
}

func TestExemplars_ExclusionDoesNotStarveResult(t *testing.T) {
	enc, ix, meta := memoryFixture(t)
	cfg := DefaultConfig()
	cfg.OverFetch = 1
	r := NewRetriever(enc, ix, meta, cfg, nil)

	// the nearest neighbour is the excluded context itself
	got := r.Exemplars(context.Background(), "q", "c0", 1)
	assert.Equal(t, []inference.Exemplar{{Text: "beta", Label: prediction.Secondary}}, got)
}

func TestExemplars_OverFetchAppliedOnce(t *testing.T) {
	r := NewRetriever(nil, nil, nil, DefaultConfig(), nil)
	assert.Equal(t, 3*DefaultConfig().OverFetch, r.exemplarCandidates(2))
}

// #endregion retrieve-tests

// #region encoder-tests
func TestBatchEncoder_PreservesOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	inner := &numberEncoder{}
	enc := NewBatchEncoder(inner, RetrievalConfig{BatchSize: 3, Concurrency: 2})
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = "t" + strconv.Itoa(i)
	}

	vecs, err := enc.Encode(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 10)
	for i, v := range vecs {
		assert.Equal(t, []float32{float32(i)}, v)
	}
	assert.Equal(t, int32(4), inner.calls.Load())
	assert.Equal(t, 1, enc.Dimensions())
}

func TestBatchEncoder_SmallInputSingleCall(t *testing.T) {
	inner := &numberEncoder{}
	enc := NewBatchEncoder(inner, RetrievalConfig{BatchSize: 8, Concurrency: 2})
	_, err := enc.Encode(context.Background(), []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestBatchEncoder_PropagatesError(t *testing.T) {
	defer goleak.VerifyNone(t)

	enc := NewBatchEncoder(&numberEncoder{failOn: "t7"}, RetrievalConfig{BatchSize: 2, Concurrency: 3})
	texts := []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8"}
	_, err := enc.Encode(context.Background(), texts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 6-8")
}

func TestCodecEncoder(t *testing.T) {
	emb := &fakeEmbedder{}
	enc := NewCodecEncoder(emb, "all-mpnet-base-v2", 2)

	vecs, err := enc.Encode(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vecs)
	assert.Equal(t, "all-mpnet-base-v2", emb.last.Model)
	assert.Equal(t, 2, enc.Dimensions())

	vecs, err = enc.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestNewGenAIEncoder_RequiresKey(t *testing.T) {
	_, err := NewGenAIEncoder(context.Background(), "", "", "", 0)
	require.Error(t, err)
}

// #endregion encoder-tests
