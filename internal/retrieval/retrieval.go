package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region retriever
// Retriever finds stored contexts similar to a query. Failures degrade to an
// empty result with a warning.
type Retriever struct {
	encoder Encoder
	index   *Indexer
	meta    []Metadata
	config  RetrievalConfig
	ranker  *KNNRanker
	logger  *zap.Logger
}

// NewRetriever creates a Retriever over an index and its metadata.
func NewRetriever(enc Encoder, ix *Indexer, meta []Metadata, config RetrievalConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.OverFetch <= 0 {
		config.OverFetch = DefaultConfig().OverFetch
	}
	return &Retriever{encoder: enc, index: ix, meta: meta, config: config, logger: logger.Named("retrieval")}
}

// FromStorage loads the index and metadata from store.
func FromStorage(ctx context.Context, enc Encoder, store Storage, config RetrievalConfig, logger *zap.Logger) (*Retriever, error) {
	ix, meta, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load retriever: %w", err)
	}
	return NewRetriever(enc, ix, meta, config, logger), nil
}

// WithRanker sets the ranker used by Exemplars.
func (r *Retriever) WithRanker(rk *KNNRanker) *Retriever {
	r.ranker = rk
	return r
}

// #endregion retriever

// #region retrieve
// Retrieve returns up to topK matches for query whose metadata equals every
// filter. It searches topK*OverFetch candidates so filtering still fills the
// result, and skips ids without metadata.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filters map[string]any) []ResultItem {
	if topK <= 0 {
		topK = r.config.TopK
	}
	return r.search(ctx, query, topK, topK*r.config.OverFetch, func(m Metadata) bool {
		return len(filters) == 0 || m.Match(filters)
	})
}

// search encodes query, looks at the nearest candidates and returns up to
// limit of them that keep accepts, in similarity order.
func (r *Retriever) search(ctx context.Context, query string, limit, candidates int, keep func(Metadata) bool) []ResultItem {
	if r.index == nil || r.encoder == nil || limit <= 0 {
		r.logger.Warn("retrieval unavailable", zap.Bool("index", r.index != nil), zap.Bool("encoder", r.encoder != nil))
		return []ResultItem{}
	}

	vecs, err := r.encoder.Encode(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		r.logger.Warn("encode query failed", zap.Error(err))
		return []ResultItem{}
	}
	ids, scores, err := r.index.Search(vecs[0], candidates)
	if err != nil {
		r.logger.Warn("search failed", zap.Error(err))
		return []ResultItem{}
	}

	results := make([]ResultItem, 0, limit)
	for i, id := range ids {
		if id < 0 || id >= len(r.meta) {
			continue
		}
		m := r.meta[id]
		if !keep(m) {
			continue
		}
		results = append(results, ResultItem{
			QueryText:       query,
			MatchedContext:  m.String(KeyText),
			SimilarityScore: scores[i],
			DocID:           m.String(KeyDocID),
			ContextID:       m.String(KeyContextID),
			Section:         m.String(KeySection),
			Label:           m.String(KeyLabel),
			Metadata:        m,
		})
		if len(results) >= limit {
			break
		}
	}
	return results
}

// #endregion retrieve

// #region exemplars
// Exemplars returns up to k labelled neighbours of query for few-shot
// prompting. The context being classified is excluded by id.
func (r *Retriever) Exemplars(ctx context.Context, query, excludeContextID string, k int) []inference.Exemplar {
	if k <= 0 {
		return nil
	}
	n := r.exemplarCandidates(k)
	labelled := r.search(ctx, query, n, n, func(m Metadata) bool {
		if id := m.String(KeyContextID); id != "" && id == excludeContextID {
			return false
		}
		_, ok := prediction.ParseLabel(m.String(KeyLabel))
		return ok
	})

	ranker := r.ranker
	if ranker == nil {
		ranker = NewKNNRanker(DefaultScoreCombiner(), nil, PenaltyRule{}, 0, r.logger)
	}
	ranked := ranker.Rank(ctx, labelled)

	out := make([]inference.Exemplar, 0, k)
	for _, rc := range ranked {
		l, _ := prediction.ParseLabel(rc.Label)
		out = append(out, inference.Exemplar{Text: rc.Context, Label: l})
		if len(out) == k {
			break
		}
	}
	return out
}

// exemplarCandidates is the search size for k exemplars: one extra slot for
// the excluded context, over-fetched once.
func (r *Retriever) exemplarCandidates(k int) int {
	return (k + 1) * r.config.OverFetch
}

// #endregion exemplars
