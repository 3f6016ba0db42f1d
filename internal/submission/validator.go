package submission

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// #region validator

// Validator checks an existing submission file.
type Validator struct {
	allowed []string
	logger  *zap.Logger
}

// NewValidator creates a validator for the given label set; nil means the
// three citation labels.
func NewValidator(allowed []string, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{allowed: allowed, logger: logger.Named("submission")}
}

// Validate reads csvPath, checks the header and every row, and writes the
// report when reportPath is set. Problems with the content are reported, not
// returned as errors.
func (v *Validator) Validate(csvPath, reportPath string) (Report, error) {
	header, records, err := readCSV(csvPath)
	if err != nil {
		return Report{}, err
	}

	var issues []Issue
	if !slices.Equal(header, Columns) {
		issues = append(issues, Issue{
			ErrorType: IssueColumnMismatch,
			Detail:    fmt.Sprintf("Expected columns %v but found %v", Columns, header),
		})
	}

	idCol := slices.Index(header, "id")
	labelCol := slices.Index(header, "label")
	rv := NewRowValidator(v.allowed)
	for i, rec := range records {
		row := Row{ID: cell(rec, idCol), Label: cell(rec, labelCol)}
		issues = append(issues, rv.Check(i, row)...)
	}

	report := NewReport(filepath.Base(csvPath), len(records), issues)
	for _, is := range issues {
		v.logger.Warn("validation issue", zap.String("type", is.ErrorType), zap.String("detail", is.Detail))
	}
	if reportPath != "" {
		if err := WriteReport(report, reportPath); err != nil {
			return report, err
		}
	}
	return report, nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open submission: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("read submission: empty file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read submission header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read submission rows: %w", err)
	}
	return header, records, nil
}

func cell(rec []string, col int) string {
	if col < 0 || col >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[col])
}

// #endregion validator
