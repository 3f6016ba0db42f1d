package retrieval

import (
	"errors"
	"fmt"
)

// #region errors
var (
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnknownMetric is returned for metrics other than cosine and ip.
	ErrUnknownMetric = errors.New("unknown similarity metric")
	// ErrCorruptIndex is returned when an index file's header disagrees with
	// its body.
	ErrCorruptIndex = errors.New("corrupt index file")
)

// #endregion errors

// #region config
// RetrievalConfig holds limits for search and batched encoding.
type RetrievalConfig struct {
	TopK        int // default result count
	OverFetch   int // search TopK*OverFetch candidates before filtering
	BatchSize   int // texts per encoder call
	Concurrency int // parallel encoder calls
}

// DefaultConfig returns the defaults used by the pipeline.
func DefaultConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:        5,
		OverFetch:   5,
		BatchSize:   32,
		Concurrency: 4,
	}
}

// #endregion config

// #region metadata
// Metadata is the free-form record stored alongside each indexed vector.
// Conventional keys: text, doc_id, context_id, section, label.
type Metadata map[string]any

// Conventional metadata keys.
const (
	KeyText      = "text"
	KeyDocID     = "doc_id"
	KeyContextID = "context_id"
	KeySection   = "section"
	KeyLabel     = "label"
)

// String returns the value at key formatted as a string, or "" when absent.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Match reports whether every filter key is present with an equal value.
func (m Metadata) Match(filters map[string]any) bool {
	for k, want := range filters {
		got, ok := m[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// #endregion metadata

// #region result-item
// ResultItem is one retrieved context.
type ResultItem struct {
	QueryText       string   `json:"query_text"`
	MatchedContext  string   `json:"matched_context"`
	SimilarityScore float64  `json:"similarity_score"`
	DocID           string   `json:"doc_id,omitempty"`
	ContextID       string   `json:"context_id,omitempty"`
	Section         string   `json:"section,omitempty"`
	Label           string   `json:"label,omitempty"`
	Metadata        Metadata `json:"-"`
}

// #endregion result-item
