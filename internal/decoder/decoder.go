package decoder

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region errors
var (
	// ErrInvalidLabel is returned when a resolved label is outside the label
	// set or its confidence is below the configured floor.
	ErrInvalidLabel = errors.New("invalid label")
	// ErrNoScores is returned when no score vector is available.
	ErrNoScores = errors.New("no scores provided")
)

// #endregion errors

// #region strategy

// Strategy selects how text and logit signals are reconciled.
type Strategy string

const (
	DirectLabel Strategy = "direct_label"
	Text2Label  Strategy = "text2label"
	LogitMapped Strategy = "logit-mapped"
)

// ParseStrategy maps a configured name onto a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case DirectLabel, "":
		return DirectLabel, nil
	case Text2Label:
		return Text2Label, nil
	case LogitMapped, "logit_mapped":
		return LogitMapped, nil
	}
	return "", fmt.Errorf("unknown decoding strategy %q", s)
}

// Label sources.
const (
	SourceDirect  = "direct_label"
	SourceMatched = "matched_phrase"
	SourceDefault = "default"
	SourceLogit   = "logit"
)

// #endregion strategy

// #region config

// Config controls label-token mapping and validation.
type Config struct {
	// TokenIDs maps labels to real vocabulary ids. Labels missing here use the
	// stable FNV-1a hash modulo the vocabulary size.
	TokenIDs      map[prediction.Label]int
	MinConfidence float64
}

// DefaultConfig keeps the hash mapping and a zero confidence floor.
func DefaultConfig() Config {
	return Config{}
}

// Decoder turns generated text plus score vectors into a FinalPrediction.
type Decoder struct {
	config Config
}

// New creates a decoder.
func New(config Config) *Decoder {
	return &Decoder{config: config}
}

// #endregion config

// #region decode

// Decode reconciles text and the final-step score vector under strategy.
// Only scores[len(scores)-1] is read.
func (d *Decoder) Decode(contextID, text string, scores [][]float32, strategy Strategy) (prediction.FinalPrediction, error) {
	logits, err := d.LabelLogits(scores)
	if err != nil {
		return prediction.FinalPrediction{}, fmt.Errorf("decode %s: %w", contextID, err)
	}
	return d.DecodeLogits(contextID, text, logits, strategy)
}

// DecodeLogits applies the strategy to an already label-mapped logit table.
func (d *Decoder) DecodeLogits(contextID, text string, logits map[string]float64, strategy Strategy) (prediction.FinalPrediction, error) {
	probs := Softmax(logits)
	textLabel, textSource := ExtractLabel(text)

	var final prediction.Label
	var source string
	switch strategy {
	case LogitMapped:
		final, source = argmax(probs), SourceLogit
	case Text2Label:
		final, source = textLabel, textSource
	case DirectLabel:
		if textSource != SourceDefault {
			final, source = textLabel, textSource
		} else {
			final, source = argmax(probs), SourceLogit
		}
	default:
		return prediction.FinalPrediction{}, fmt.Errorf("decode %s: unknown strategy %q", contextID, strategy)
	}

	pred := prediction.FinalPrediction{
		ContextID:    contextID,
		FinalLabel:   final,
		Confidence:   probs[string(final)],
		RawOutput:    text,
		UsedStrategy: string(strategy),
		LabelSource:  source,
		Logits:       logits,
	}
	if err := d.Validate(pred); err != nil {
		return prediction.FinalPrediction{}, err
	}
	return pred, nil
}

// Validate rejects labels outside the set and confidences below the floor.
func (d *Decoder) Validate(pred prediction.FinalPrediction) error {
	if !pred.FinalLabel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, pred.FinalLabel)
	}
	if pred.Confidence < d.config.MinConfidence || math.IsNaN(pred.Confidence) {
		return fmt.Errorf("%w: confidence %.4f below %.4f", ErrInvalidLabel, pred.Confidence, d.config.MinConfidence)
	}
	return nil
}

// #endregion decode

// #region logits

// LabelLogits picks one raw score per label from the last score vector.
func (d *Decoder) LabelLogits(scores [][]float32) (map[string]float64, error) {
	if len(scores) == 0 || len(scores[len(scores)-1]) == 0 {
		return nil, ErrNoScores
	}
	last := scores[len(scores)-1]
	out := make(map[string]float64, len(prediction.Labels))
	for _, l := range prediction.Labels {
		idx := d.tokenID(l, len(last))
		out[string(l)] = float64(last[idx])
	}
	return out, nil
}

func (d *Decoder) tokenID(l prediction.Label, vocab int) int {
	if id, ok := d.config.TokenIDs[l]; ok && id >= 0 && id < vocab {
		return id
	}
	return int(labelHash(l) % uint32(vocab))
}

func labelHash(l prediction.Label) uint32 {
	h := fnv.New32a()
	h.Write([]byte(l))
	return h.Sum32()
}

// Softmax converts label logits into probabilities with max subtraction.
// Missing labels count as zero logits.
func Softmax(logits map[string]float64) map[string]float64 {
	maxV := math.Inf(-1)
	for _, l := range prediction.Labels {
		if v := logits[string(l)]; v > maxV {
			maxV = v
		}
	}
	probs := make(map[string]float64, len(prediction.Labels))
	var sum float64
	for _, l := range prediction.Labels {
		e := math.Exp(logits[string(l)] - maxV)
		probs[string(l)] = e
		sum += e
	}
	for k := range probs {
		probs[k] /= sum
	}
	return probs
}

// argmax returns the most probable label; ties go to the earlier label.
func argmax(probs map[string]float64) prediction.Label {
	best := prediction.Labels[0]
	for _, l := range prediction.Labels[1:] {
		if probs[string(l)] > probs[string(best)] {
			best = l
		}
	}
	return best
}

// #endregion logits

// #region extract

// ExtractLabel finds a label in generated text. Exact match wins, then the
// first label contained as a substring; otherwise none/default.
func ExtractLabel(text string) (prediction.Label, string) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if l, ok := prediction.ParseLabel(lower); ok {
		return l, SourceDirect
	}
	for _, l := range prediction.Labels {
		if strings.Contains(lower, string(l)) {
			return l, SourceMatched
		}
	}
	return prediction.None, SourceDefault
}

// #endregion extract
