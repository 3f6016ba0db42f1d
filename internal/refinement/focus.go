package refinement

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// #region stopwords
// defaultStopwords are dropped before focus terms are ranked.
var defaultStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true,
	"that": true, "this": true, "from": true,
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// #endregion stopwords

// #region focus
// FocusExtractor picks the keywords a self-question is built around.
type FocusExtractor struct {
	stopwords map[string]bool
	minLen    int
}

// NewFocusExtractor creates an extractor. A nil stop set uses the default.
func NewFocusExtractor(stopwords []string) *FocusExtractor {
	set := defaultStopwords
	if stopwords != nil {
		set = make(map[string]bool, len(stopwords))
		for _, w := range stopwords {
			set[strings.ToLower(w)] = true
		}
	}
	return &FocusExtractor{stopwords: set, minLen: 4}
}

// Extract returns up to topK terms ordered by frequency. Ties keep the order
// of first occurrence.
func (f *FocusExtractor) Extract(text string, topK int) []string {
	if topK <= 0 {
		return nil
	}
	counts := make(map[string]int)
	var order []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if f.stopwords[w] || utf8.RuneCountInString(w) < f.minLen {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return counts[b] - counts[a]
	})
	if len(order) > topK {
		order = order[:topK]
	}
	return order
}

// #endregion focus
