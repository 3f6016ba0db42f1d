// Package refinement re-examines low-confidence predictions: it asks the model
// targeted follow-up questions, re-runs inference with each question appended,
// and keeps the answers the acceptance gate lets through.
package refinement

import (
	"strings"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region question-types
// Question types in generation order.
const (
	ClassificationChallenge = "classification_challenge"
	SemanticContrast        = "semantic_contrast"
	DetailCheck             = "detail_check"
	SelfReflection          = "self_reflection"
)

// QuestionTypes is the default generation order.
var QuestionTypes = []string{ClassificationChallenge, SemanticContrast, DetailCheck, SelfReflection}

// Templates maps each question type to its templates. ${focus} and
// ${prediction} are substituted; unknown placeholders are left as written.
var Templates = map[string][]string{
	ClassificationChallenge: {"Is the reference to ${focus} truly a ${prediction} citation, or does it play another role?"},
	SemanticContrast:        {"How would the interpretation change if ${focus} were considered primary evidence?"},
	DetailCheck:             {"What specific data about ${focus} is being referenced here?"},
	SelfReflection:          {"Can you justify labeling ${focus} as ${prediction}?"},
}

// #endregion question-types

// #region question-item
// QuestionSource ties a question back to the prediction it challenges.
type QuestionSource struct {
	DocID              string           `json:"doc_id"`
	Section            string           `json:"section"`
	OriginalPrediction prediction.Label `json:"original_prediction"`
}

// SelfQuestionItem is one generated follow-up question.
type SelfQuestionItem struct {
	ContextID       string         `json:"context_id"`
	QuestionID      string         `json:"question_id"`
	QuestionText    string         `json:"question_text"`
	QuestionType    string         `json:"question_type"`
	ConfidenceLevel float64        `json:"confidence_level"`
	Source          QuestionSource `json:"source"`
}

// #endregion question-item

// #region questioner
// QuestionerConfig controls question generation.
type QuestionerConfig struct {
	TopK          int      // focus terms per context
	QuestionTypes []string // empty means QuestionTypes
}

// DefaultQuestionerConfig returns two focus terms over every question type.
func DefaultQuestionerConfig() QuestionerConfig {
	return QuestionerConfig{TopK: 2}
}

// Questioner expands a prediction into self-questions.
type Questioner struct {
	config QuestionerConfig
	focus  *FocusExtractor
	newID  func() string
}

// NewQuestioner creates a questioner with the default stop set.
func NewQuestioner(config QuestionerConfig) *Questioner {
	if len(config.QuestionTypes) == 0 {
		config.QuestionTypes = QuestionTypes
	}
	return &Questioner{config: config, focus: NewFocusExtractor(nil), newID: newQuestionID}
}

// Generate builds one question per (type, focus term, template) in that loop
// order. A context with no usable focus term yields no questions.
func (q *Questioner) Generate(unit prediction.ContextUnit, pred prediction.FinalPrediction) []SelfQuestionItem {
	terms := q.focus.Extract(unit.Text, q.config.TopK)
	var out []SelfQuestionItem
	for _, qt := range q.config.QuestionTypes {
		for _, term := range terms {
			for _, tmpl := range Templates[qt] {
				out = append(out, SelfQuestionItem{
					ContextID:       unit.ContextID,
					QuestionID:      q.newID(),
					QuestionText:    Render(tmpl, term, pred.FinalLabel),
					QuestionType:    qt,
					ConfidenceLevel: pred.Confidence,
					Source: QuestionSource{
						DocID:              unit.DocID,
						Section:            unit.Source.Section,
						OriginalPrediction: pred.FinalLabel,
					},
				})
			}
		}
	}
	return out
}

// Render substitutes a focus term and label into a template.
func Render(tmpl, focus string, label prediction.Label) string {
	return strings.NewReplacer("${focus}", focus, "${prediction}", string(label)).Replace(tmpl)
}

func newQuestionID() string {
	return "qst_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// #endregion questioner
