package prediction

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// #region context-unit

// SourceInfo locates a context unit inside its document.
type SourceInfo struct {
	Section             string `json:"section"`
	StartSentenceIdx    int    `json:"start_sentence_idx"`
	EndSentenceIdx      int    `json:"end_sentence_idx"`
	OriginalParagraphID int    `json:"original_paragraph_id"`
}

// ContextUnit is a bounded span of document text produced by the context
// builder. Immutable once loaded.
type ContextUnit struct {
	ContextID       string     `json:"context_id"`
	DocID           string     `json:"doc_id"`
	Text            string     `json:"text"`
	Source          SourceInfo `json:"source"`
	TokenCount      int        `json:"token_count"`
	ImportanceScore float64    `json:"importance_score"`
}

// Check enforces the unit invariants. maxTokens <= 0 disables the bound.
func (u ContextUnit) Check(maxTokens int) error {
	if u.ContextID == "" {
		return fmt.Errorf("context unit: empty context_id")
	}
	if strings.TrimSpace(u.Text) == "" {
		return fmt.Errorf("context unit %s: empty text", u.ContextID)
	}
	if maxTokens > 0 && u.TokenCount > maxTokens {
		return fmt.Errorf("context unit %s: token_count %d exceeds max %d", u.ContextID, u.TokenCount, maxTokens)
	}
	if u.Source.StartSentenceIdx < 0 || u.Source.EndSentenceIdx < 0 || u.Source.OriginalParagraphID < 0 {
		return fmt.Errorf("context unit %s: negative source index", u.ContextID)
	}
	return nil
}

// #endregion context-unit

// #region load

// LineError is a per-line failure collected while loading context units.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// LoadContextUnits reads JSONL context units from path. Malformed or invalid
// lines are collected and returned alongside the valid units; only I/O
// failures abort the read.
func LoadContextUnits(path string, maxTokens int) ([]ContextUnit, []LineError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open context units %s: %w", path, err)
	}
	defer f.Close()

	var units []ContextUnit
	var lineErrs []LineError

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var u ContextUnit
		if err := json.Unmarshal([]byte(line), &u); err != nil {
			lineErrs = append(lineErrs, LineError{Line: lineNo, Err: fmt.Errorf("parse: %w", err)})
			continue
		}
		if err := u.Check(maxTokens); err != nil {
			lineErrs = append(lineErrs, LineError{Line: lineNo, Err: err})
			continue
		}
		units = append(units, u)
	}
	if err := scanner.Err(); err != nil {
		return units, lineErrs, fmt.Errorf("scan context units: %w", err)
	}
	return units, lineErrs, nil
}

// #endregion load
