package replay

import (
	"fmt"

	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region types

// Replay actions.
const (
	ActionMatch    = "match"
	ActionMismatch = "mismatch"
	ActionError    = "error"
)

// ReplayResult captures the outcome of re-decoding one recorded call.
type ReplayResult struct {
	ContextID  string
	Action     string
	Reason     string
	Expected   prediction.Label
	Got        prediction.Label
	Source     string
	Confidence float64
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	Total      int
	Matches    int
	Mismatches int
	Errors     int
}

// OK reports whether every record decoded to its expectation.
func (s ReplaySummary) OK() bool {
	return s.Mismatches == 0 && s.Errors == 0
}

// #endregion types

// #region replay

// Replay decodes every record with dec under the fixture's strategy and
// compares label and, when recorded, label source.
func Replay(f *Fixture, dec *decoder.Decoder) ([]ReplayResult, error) {
	strategy, err := decoder.ParseStrategy(f.Decoding)
	if err != nil {
		return nil, err
	}

	results := make([]ReplayResult, 0, len(f.Records))
	for _, rec := range f.Records {
		var pred prediction.FinalPrediction
		var err error
		if len(rec.Scores) > 0 {
			pred, err = dec.Decode(rec.ContextID, rec.Output, rec.Scores, strategy)
		} else {
			pred, err = dec.DecodeLogits(rec.ContextID, rec.Output, rec.Logits, strategy)
		}

		r := ReplayResult{ContextID: rec.ContextID, Expected: rec.ExpectedLabel}
		switch {
		case err != nil:
			r.Action, r.Reason = ActionError, err.Error()
		case pred.FinalLabel != rec.ExpectedLabel:
			r.Action = ActionMismatch
			r.Reason = fmt.Sprintf("label %s, expected %s", pred.FinalLabel, rec.ExpectedLabel)
		case rec.ExpectedSource != "" && pred.LabelSource != rec.ExpectedSource:
			r.Action = ActionMismatch
			r.Reason = fmt.Sprintf("source %s, expected %s", pred.LabelSource, rec.ExpectedSource)
		default:
			r.Action = ActionMatch
		}
		r.Got, r.Source, r.Confidence = pred.FinalLabel, pred.LabelSource, pred.Confidence
		results = append(results, r)
	}
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{Total: len(results)}
	for _, r := range results {
		switch r.Action {
		case ActionMatch:
			s.Matches++
		case ActionMismatch:
			s.Mismatches++
		case ActionError:
			s.Errors++
		}
	}
	return s
}

// #endregion replay
