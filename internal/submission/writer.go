package submission

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// #region writer

// Writer produces a validated submission CSV.
type Writer struct {
	formatter Formatter
	logger    *zap.Logger
}

// NewWriter creates a writer.
func NewWriter(logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{logger: logger.Named("submission")}
}

// Write formats preds, backfills expected ids with DefaultLabel and validates
// the rows. Any issue writes the report (when reportPath is set) and returns
// ErrInvalidSubmission without touching outPath. Otherwise the CSV is written
// in input order followed by the clean report.
func (w *Writer) Write(preds []any, outPath string, expected []string, reportPath string) (Report, error) {
	rows := w.formatter.Format(preds)
	rows = BackfillMissing(rows, expected, DefaultLabel)

	issues := ValidateRows(rows)
	report := NewReport(filepath.Base(outPath), len(rows), issues)
	for _, is := range issues {
		w.logger.Warn("submission issue", zap.String("type", is.ErrorType), zap.String("detail", is.Detail))
	}

	if !report.OK() {
		if reportPath != "" {
			if err := WriteReport(report, reportPath); err != nil {
				return report, err
			}
		}
		return report, fmt.Errorf("%w: %d issues in %d rows", ErrInvalidSubmission, report.Summary.Errors, report.Summary.TotalRows)
	}

	if err := writeCSV(outPath, rows); err != nil {
		return report, err
	}
	if reportPath != "" {
		if err := WriteReport(report, reportPath); err != nil {
			return report, err
		}
	}
	w.logger.Info("submission written", zap.String("path", outPath), zap.Int("rows", len(rows)))
	return report, nil
}

func writeCSV(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create submission dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.ID, r.Label}); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush submission: %w", err)
	}
	return f.Close()
}

// #endregion writer
