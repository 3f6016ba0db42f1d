package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// MirrorSchema creates the error_log table.
const MirrorSchema = `
CREATE TABLE IF NOT EXISTS error_log (
	error_id             TEXT PRIMARY KEY,
	context_id           TEXT NOT NULL,
	error_type           TEXT NOT NULL,
	source_module        TEXT NOT NULL,
	original_label       TEXT,
	predicted_label      TEXT,
	refined_label        TEXT,
	confidence           REAL,
	confidence_threshold REAL,
	reason               TEXT,
	meta_json            TEXT,
	created_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_error_log_type ON error_log(error_type);
`

// #region ensure-schema
// EnsureMirror creates the error_log table if it does not exist.
func EnsureMirror(db *sql.DB) error {
	if _, err := db.Exec(MirrorSchema); err != nil {
		return fmt.Errorf("create error_log: %w", err)
	}
	return nil
}

// #endregion ensure-schema

// #region mirror-record
// MirrorRecord writes rec to the error_log table.
func MirrorRecord(db *sql.DB, rec ErrorRecord) error {
	var metaJSON string
	if len(rec.Meta) > 0 {
		b, err := json.Marshal(rec.Meta)
		if err != nil {
			return fmt.Errorf("encode meta: %w", err)
		}
		metaJSON = string(b)
	}

	_, err := db.Exec(
		`INSERT INTO error_log (error_id, context_id, error_type, source_module, original_label, predicted_label,
		 refined_label, confidence, confidence_threshold, reason, meta_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ErrorID,
		rec.ContextID,
		string(rec.ErrorType),
		rec.SourceModule,
		nullLabel(rec.OriginalLabel),
		nullLabel(rec.PredictedLabel),
		nullLabel(rec.RefinedLabel),
		nullFloat(rec.Confidence),
		nullFloat(rec.ConfidenceThreshold),
		nullIfEmpty(rec.Reason),
		nullIfEmpty(metaJSON),
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("mirror error record: %w", err)
	}
	return nil
}

// MirrorCounts returns record counts per type from the error_log table.
func MirrorCounts(db *sql.DB) (map[ErrorType]int, error) {
	rows, err := db.Query(`SELECT error_type, COUNT(*) FROM error_log GROUP BY error_type`)
	if err != nil {
		return nil, fmt.Errorf("count error_log: %w", err)
	}
	defer rows.Close()

	out := make(map[ErrorType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan error_log count: %w", err)
		}
		out[ErrorType(t)] = n
	}
	return out, rows.Err()
}

// #endregion mirror-record

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullLabel(l *prediction.Label) interface{} {
	if l == nil {
		return nil
	}
	return nullIfEmpty(string(*l))
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// #endregion helpers
