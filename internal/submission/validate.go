package submission

import (
	"fmt"
	"slices"
	"strings"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region row-validator

// RowValidator checks rows one at a time. It remembers ids it has seen, so a
// validator covers exactly one file.
type RowValidator struct {
	allowed map[string]bool
	seen    map[string]bool
}

// NewRowValidator accepts the given labels. nil means the three citation
// labels.
func NewRowValidator(allowed []string) *RowValidator {
	if allowed == nil {
		for _, l := range prediction.Labels {
			allowed = append(allowed, string(l))
		}
	}
	set := make(map[string]bool, len(allowed))
	for _, l := range allowed {
		set[strings.ToLower(l)] = true
	}
	return &RowValidator{allowed: set, seen: make(map[string]bool)}
}

// Check returns the row's issues: missing fields first, then an invalid
// label, then a duplicate id.
func (v *RowValidator) Check(index int, row Row) []Issue {
	var issues []Issue
	idx := index
	missingID := row.ID == ""
	missingLabel := row.Label == ""

	if missingID {
		issues = append(issues, Issue{RowIndex: &idx, ErrorType: IssueMissingID, Detail: "Empty id"})
	}
	if missingLabel {
		issues = append(issues, Issue{RowIndex: &idx, ID: idOrNil(row.ID), ErrorType: IssueMissingLabel, Detail: "Label is missing"})
	}
	if !missingLabel {
		label := strings.ToLower(strings.TrimSpace(row.Label))
		if !v.allowed[label] {
			issues = append(issues, Issue{
				RowIndex:  &idx,
				ID:        idOrNil(row.ID),
				ErrorType: IssueInvalidLabel,
				Detail:    fmt.Sprintf("Label '%s' is not one of %v", row.Label, v.sortedAllowed()),
			})
		}
	}
	if !missingID {
		if v.seen[row.ID] {
			issues = append(issues, Issue{
				RowIndex:  &idx,
				ID:        idOrNil(row.ID),
				ErrorType: IssueDuplicateID,
				Detail:    "Duplicate id " + row.ID,
			})
		}
		v.seen[row.ID] = true
	}
	return issues
}

func (v *RowValidator) sortedAllowed() []string {
	out := make([]string, 0, len(v.allowed))
	for l := range v.allowed {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

func idOrNil(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// ValidateRows runs a fresh RowValidator over rows.
func ValidateRows(rows []Row) []Issue {
	v := NewRowValidator(nil)
	var issues []Issue
	for i, r := range rows {
		issues = append(issues, v.Check(i, r)...)
	}
	return issues
}

// #endregion row-validator
