package retrieval

import (
	"fmt"
	"math"
	"slices"
)

// Metric names a similarity function.
type Metric string

const (
	Cosine       Metric = "cosine"
	InnerProduct Metric = "ip"
)

// ParseMetric validates a configured metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case Cosine, InnerProduct:
		return Metric(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// #region indexer

// Indexer is an exact flat vector index. Under cosine the stored vectors are
// L2-normalised copies, so search reduces to inner product.
type Indexer struct {
	dim    int
	metric Metric
	vecs   [][]float32
}

// NewIndexer creates an empty index.
func NewIndexer(dim int, metric Metric) (*Indexer, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if dim <= 0 {
		return nil, fmt.Errorf("new indexer: dimension must be positive, got %d", dim)
	}
	return &Indexer{dim: dim, metric: metric}, nil
}

// Dim returns the vector dimension.
func (ix *Indexer) Dim() int { return ix.dim }

// Metric returns the similarity metric.
func (ix *Indexer) Metric() Metric { return ix.metric }

// Len returns the number of stored vectors.
func (ix *Indexer) Len() int { return len(ix.vecs) }

// Vectors returns the stored vectors. Callers must not modify them.
func (ix *Indexer) Vectors() [][]float32 { return ix.vecs }

// Add appends vectors in order. The whole batch is rejected if any vector has
// the wrong dimension.
func (ix *Indexer) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("%w: vector %d has %d dims, index has %d", ErrDimensionMismatch, i, len(v), ix.dim)
		}
	}
	for _, v := range vectors {
		cp := slices.Clone(v)
		if ix.metric == Cosine {
			normalize(cp)
		}
		ix.vecs = append(ix.vecs, cp)
	}
	return nil
}

// restore appends already-prepared vectors without normalising them again.
func (ix *Indexer) restore(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("%w: vector %d has %d dims, index has %d", ErrDimensionMismatch, i, len(v), ix.dim)
		}
	}
	ix.vecs = append(ix.vecs, vectors...)
	return nil
}

// Search returns up to k ids with scores, best first. Ties keep insertion
// order.
func (ix *Indexer) Search(query []float32, k int) ([]int, []float64, error) {
	if len(query) != ix.dim {
		return nil, nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	q := query
	if ix.metric == Cosine {
		q = slices.Clone(query)
		normalize(q)
	}

	k = min(k, len(ix.vecs))
	if k <= 0 {
		return nil, nil, nil
	}

	ids := make([]int, len(ix.vecs))
	scores := make([]float64, len(ix.vecs))
	for i, v := range ix.vecs {
		ids[i] = i
		scores[i] = dot(q, v)
	}
	slices.SortStableFunc(ids, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return 0
	})

	ids = ids[:k]
	out := make([]float64, k)
	for i, id := range ids {
		out[i] = scores[id]
	}
	return ids, out, nil
}

// #endregion indexer

// #region vector-math
func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// normalize scales v to unit length in place. Zero vectors are left as is.
func normalize(v []float32) {
	var sq float64
	for _, f := range v {
		sq += float64(f) * float64(f)
	}
	if sq == 0 {
		return
	}
	n := math.Sqrt(sq)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}

// #endregion vector-math
