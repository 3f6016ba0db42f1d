// Package submission turns predictions into the two-column id,label CSV and
// validates submission files, always leaving a JSON report behind.
package submission

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidSubmission is returned when rows fail validation. The report is
// still written when a report path was given.
var ErrInvalidSubmission = errors.New("invalid submission")

// Columns is the required header.
var Columns = []string{"id", "label"}

// DefaultLabel backfills expected ids that have no prediction.
const DefaultLabel = "none"

// Issue types.
const (
	IssueColumnMismatch = "column_mismatch"
	IssueMissingID      = "missing_id"
	IssueMissingLabel   = "missing_label"
	IssueInvalidLabel   = "invalid_label_value"
	IssueDuplicateID    = "duplicate_id"
)

// #region types

// Row is one submission line.
type Row struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Issue is one validation problem. RowIndex and ID are null for file-level
// problems.
type Issue struct {
	RowIndex  *int    `json:"row_index"`
	ID        *string `json:"id"`
	ErrorType string  `json:"error_type"`
	Detail    string  `json:"detail"`
}

// Summary counts rows and issues.
type Summary struct {
	TotalRows  int            `json:"total_rows"`
	ValidRows  int            `json:"valid_rows"`
	Errors     int            `json:"errors"`
	ErrorTypes map[string]int `json:"error_types"`
}

// Report is the JSON validation report.
type Report struct {
	File    string  `json:"file"`
	Summary Summary `json:"summary"`
	Issues  []Issue `json:"issues"`
}

// OK reports whether no issue was found.
func (r Report) OK() bool { return len(r.Issues) == 0 }

// #endregion types

// #region report

// NewReport summarises issues found over totalRows rows of file.
func NewReport(file string, totalRows int, issues []Issue) Report {
	types := make(map[string]int)
	badRows := make(map[int]bool)
	for _, is := range issues {
		types[is.ErrorType]++
		if is.RowIndex != nil {
			badRows[*is.RowIndex] = true
		}
	}
	if issues == nil {
		issues = []Issue{}
	}
	return Report{
		File: file,
		Summary: Summary{
			TotalRows:  totalRows,
			ValidRows:  totalRows - len(badRows),
			Errors:     len(issues),
			ErrorTypes: types,
		},
		Issues: issues,
	}
}

// WriteReport writes r as one JSON document, creating parent directories.
func WriteReport(r Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// #endregion report
