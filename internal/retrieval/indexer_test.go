package retrieval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region constructor-tests
func TestNewIndexer_Validation(t *testing.T) {
	_, err := NewIndexer(4, "l2")
	require.ErrorIs(t, err, ErrUnknownMetric)

	_, err = NewIndexer(0, Cosine)
	require.Error(t, err)

	ix, err := NewIndexer(4, InnerProduct)
	require.NoError(t, err)
	assert.Equal(t, 4, ix.Dim())
	assert.Equal(t, InnerProduct, ix.Metric())
	assert.Equal(t, 0, ix.Len())
}

// #endregion constructor-tests

// #region add-tests
func TestAdd_RejectsWholeBatchOnMismatch(t *testing.T) {
	ix, err := NewIndexer(2, Cosine)
	require.NoError(t, err)

	err = ix.Add([][]float32{{1, 0}, {1, 0, 0}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, ix.Len())
}

func TestAdd_CosineNormalisesCopies(t *testing.T) {
	ix, err := NewIndexer(2, Cosine)
	require.NoError(t, err)

	in := []float32{3, 4}
	require.NoError(t, ix.Add([][]float32{in}))
	assert.Equal(t, []float32{3, 4}, in, "caller slice must not change")
	assert.InDelta(t, 0.6, ix.Vectors()[0][0], 1e-6)
	assert.InDelta(t, 0.8, ix.Vectors()[0][1], 1e-6)
}

// #endregion add-tests

// #region search-tests
func TestSearch_Cosine(t *testing.T) {
	ix, err := NewIndexer(2, Cosine)
	require.NoError(t, err)
	require.NoError(t, ix.Add([][]float32{{1, 0}, {0, 1}, {1, 1}}))

	ids, scores, err := ix.Search([]float32{2, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, ids)
	assert.InDelta(t, 1.0, scores[0], 1e-6)
	assert.InDelta(t, 1/math.Sqrt2, scores[1], 1e-6)
	assert.InDelta(t, 0.0, scores[2], 1e-6)
}

func TestSearch_InnerProductIsUnnormalised(t *testing.T) {
	ix, err := NewIndexer(2, InnerProduct)
	require.NoError(t, err)
	require.NoError(t, ix.Add([][]float32{{1, 0}, {3, 0}}))

	ids, scores, err := ix.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, ids)
	assert.Equal(t, []float64{3, 1}, scores)
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	ix, err := NewIndexer(2, InnerProduct)
	require.NoError(t, err)
	require.NoError(t, ix.Add([][]float32{{1, 0}, {0, 5}, {1, 0}, {1, 0}}))

	ids, _, err := ix.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3}, ids)
}

func TestSearch_ClampsK(t *testing.T) {
	ix, err := NewIndexer(2, Cosine)
	require.NoError(t, err)
	require.NoError(t, ix.Add([][]float32{{1, 0}, {0, 1}}))

	ids, scores, err := ix.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Len(t, scores, 2)

	ids, _, err = ix.Search([]float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	ix, err := NewIndexer(2, Cosine)
	require.NoError(t, err)
	_, _, err = ix.Search([]float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

// #endregion search-tests
