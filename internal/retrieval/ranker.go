package retrieval

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"
)

// #region combiner

// ScoreCombiner computes a weighted sum of named scores. Missing scores count
// as zero.
type ScoreCombiner struct {
	Weights map[string]float64
}

// DefaultScoreCombiner weights similarity only.
func DefaultScoreCombiner() ScoreCombiner {
	return ScoreCombiner{Weights: map[string]float64{"similarity": 1}}
}

func (c ScoreCombiner) Combine(scores map[string]float64) float64 {
	var total float64
	for name, w := range c.Weights {
		total += w * scores[name]
	}
	return total
}

// #endregion combiner

// #region penalty

// PenaltyRule adds a per-value adjustment for metadata fields. Negative
// values penalise, positive values boost.
type PenaltyRule struct {
	Penalties map[string]map[string]float64
}

func (p PenaltyRule) Apply(meta Metadata) float64 {
	var adj float64
	for field, mapping := range p.Penalties {
		v, ok := meta[field]
		if !ok || v == nil {
			continue
		}
		adj += mapping[meta.String(field)]
	}
	return adj
}

// #endregion penalty

// #region reranker

// Reranker scores a (query, context) pair.
type Reranker interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// EncoderReranker scores pairs by cosine similarity of their embeddings. With
// no encoder it scores every pair zero.
type EncoderReranker struct {
	Encoder Encoder
}

func (r EncoderReranker) Score(ctx context.Context, query, text string) (float64, error) {
	if r.Encoder == nil {
		return 0, nil
	}
	vecs, err := r.Encoder.Encode(ctx, []string{query, text})
	if err != nil {
		return 0, err
	}
	if len(vecs) != 2 {
		return 0, fmt.Errorf("rerank: got %d vectors for 2 texts", len(vecs))
	}
	a, b := slices.Clone(vecs[0]), slices.Clone(vecs[1])
	normalize(a)
	normalize(b)
	return dot(a, b), nil
}

// #endregion reranker

// #region ranker

// RankMeta records how a final score was produced.
type RankMeta struct {
	Source  string             `json:"source"`
	Penalty float64            `json:"penalty"`
	Weights map[string]float64 `json:"weights"`
}

// RankedContext is a retrieval result after re-ranking.
type RankedContext struct {
	QueryText       string   `json:"query_text"`
	Context         string   `json:"context"`
	Rank            int      `json:"rank"`
	SimilarityScore float64  `json:"similarity_score"`
	FinalScore      float64  `json:"final_score"`
	RerankerScore   *float64 `json:"reranker_score,omitempty"`
	DocID           string   `json:"doc_id,omitempty"`
	ContextID       string   `json:"context_id,omitempty"`
	Label           string   `json:"label,omitempty"`
	Section         string   `json:"section,omitempty"`
	Metadata        RankMeta `json:"metadata"`
}

// KNNRanker orders retrieval results by combined score plus penalties.
type KNNRanker struct {
	combiner ScoreCombiner
	reranker Reranker
	penalty  PenaltyRule
	topK     int
	logger   *zap.Logger
}

// NewKNNRanker creates a ranker. topK <= 0 keeps every result. An empty
// combiner falls back to DefaultScoreCombiner.
func NewKNNRanker(combiner ScoreCombiner, reranker Reranker, penalty PenaltyRule, topK int, logger *zap.Logger) *KNNRanker {
	if len(combiner.Weights) == 0 {
		combiner = DefaultScoreCombiner()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KNNRanker{combiner: combiner, reranker: reranker, penalty: penalty, topK: topK, logger: logger}
}

type scoredItem struct {
	item    ResultItem
	final   float64
	rerank  *float64
	penalty float64
}

// Rank scores every item and returns them best first with 1-based ranks.
// Equal scores keep input order.
func (k *KNNRanker) Rank(ctx context.Context, items []ResultItem) []RankedContext {
	scored := make([]scoredItem, 0, len(items))
	for _, it := range items {
		var rerank *float64
		if k.reranker != nil {
			s, err := k.reranker.Score(ctx, it.QueryText, it.MatchedContext)
			if err != nil {
				k.logger.Warn("rerank failed", zap.String("context_id", it.ContextID), zap.Error(err))
			} else {
				rerank = &s
			}
		}
		scores := map[string]float64{"similarity": it.SimilarityScore}
		if rerank != nil {
			scores["rerank"] = *rerank
		}
		penalty := k.penalty.Apply(itemFields(it))
		scored = append(scored, scoredItem{
			item:    it,
			final:   k.combiner.Combine(scores) + penalty,
			rerank:  rerank,
			penalty: penalty,
		})
	}

	slices.SortStableFunc(scored, func(a, b scoredItem) int {
		switch {
		case a.final > b.final:
			return -1
		case a.final < b.final:
			return 1
		}
		return 0
	})

	limit := len(scored)
	if k.topK > 0 {
		limit = min(limit, k.topK)
	}
	out := make([]RankedContext, limit)
	for i, s := range scored[:limit] {
		source := "retrieval"
		if s.rerank != nil {
			source = "retrieval + rerank"
		}
		out[i] = RankedContext{
			QueryText:       s.item.QueryText,
			Context:         s.item.MatchedContext,
			Rank:            i + 1,
			SimilarityScore: s.item.SimilarityScore,
			FinalScore:      s.final,
			RerankerScore:   s.rerank,
			DocID:           s.item.DocID,
			ContextID:       s.item.ContextID,
			Label:           s.item.Label,
			Section:         s.item.Section,
			Metadata: RankMeta{
				Source:  source,
				Penalty: s.penalty,
				Weights: maps.Clone(k.combiner.Weights),
			},
		}
	}
	return out
}

// itemFields exposes the stored metadata plus the item's own fields to
// penalty rules.
func itemFields(it ResultItem) Metadata {
	m := maps.Clone(it.Metadata)
	if m == nil {
		m = Metadata{}
	}
	m["query_text"] = it.QueryText
	m["matched_context"] = it.MatchedContext
	m["similarity_score"] = it.SimilarityScore
	for k, v := range map[string]string{
		KeyDocID:     it.DocID,
		KeyContextID: it.ContextID,
		KeySection:   it.Section,
		KeyLabel:     it.Label,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// #endregion ranker
