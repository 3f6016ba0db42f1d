package submission

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region formatter

// Formatter normalises heterogeneous prediction values into rows.
type Formatter struct{}

// Format accepts Row, prediction.FinalPrediction (or a pointer to one) and
// maps keyed by id|context_id and label|final_label. Ids are trimmed and
// labels lower-cased; entries missing either are skipped.
func (Formatter) Format(preds []any) []Row {
	rows := make([]Row, 0, len(preds))
	for _, p := range preds {
		var id, label string
		switch v := p.(type) {
		case Row:
			id, label = v.ID, v.Label
		case *Row:
			if v != nil {
				id, label = v.ID, v.Label
			}
		case prediction.FinalPrediction:
			id, label = v.ContextID, string(v.FinalLabel)
		case *prediction.FinalPrediction:
			if v != nil {
				id, label = v.ContextID, string(v.FinalLabel)
			}
		case map[string]any:
			id = firstString(v, "id", "context_id")
			label = firstString(v, "label", "final_label")
		case map[string]string:
			id = firstNonEmpty(v["id"], v["context_id"])
			label = firstNonEmpty(v["label"], v["final_label"])
		}

		id = strings.TrimSpace(id)
		label = strings.ToLower(strings.TrimSpace(label))
		if id == "" || label == "" {
			continue
		}
		rows = append(rows, Row{ID: id, Label: label})
	}
	return rows
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// #endregion formatter

// #region backfill

// BackfillMissing appends a defaultLabel row for every expected id not
// already present, in expected order.
func BackfillMissing(rows []Row, expected []string, defaultLabel string) []Row {
	if len(expected) == 0 {
		return rows
	}
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		seen[r.ID] = true
	}
	for _, id := range expected {
		if seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, Row{ID: id, Label: defaultLabel})
	}
	return rows
}

// #endregion backfill
