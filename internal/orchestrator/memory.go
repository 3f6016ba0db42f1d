package orchestrator

// #region imports
import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// #endregion

// #region schema

const outcomesSchema = `
CREATE TABLE IF NOT EXISTS classification_outcomes (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id         TEXT NOT NULL,
    context_id     TEXT NOT NULL,
    strategy_id    TEXT NOT NULL,
    state          TEXT NOT NULL,
    original_label TEXT NOT NULL,
    final_label    TEXT NOT NULL,
    confidence     REAL NOT NULL,
    corrected      INTEGER NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL
);
`

const outcomesIndex = `
CREATE INDEX IF NOT EXISTS idx_classification_outcomes_strategy
ON classification_outcomes(strategy_id);
`

// #endregion

// #region memory-struct

// OutcomeMemory persists per-context outcomes in SQLite and answers which
// strategy has been resolving contexts best.
type OutcomeMemory struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutcomeMemory initializes the classification_outcomes table.
func NewOutcomeMemory(db *sql.DB) (*OutcomeMemory, error) {
	if _, err := db.Exec(outcomesSchema); err != nil {
		return nil, fmt.Errorf("create classification_outcomes: %w", err)
	}
	if _, err := db.Exec(outcomesIndex); err != nil {
		return nil, fmt.Errorf("create classification_outcomes index: %w", err)
	}
	return &OutcomeMemory{db: db, now: time.Now}, nil
}

// #endregion

// #region record-outcome

// RecordOutcome persists a single outcome row.
func (m *OutcomeMemory) RecordOutcome(rec OutcomeRecord) error {
	corrected := 0
	if rec.Corrected {
		corrected = 1
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	_, err := m.db.Exec(`
		INSERT INTO classification_outcomes
		(run_id, context_id, strategy_id, state, original_label, final_label,
		 confidence, corrected, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.ContextID,
		string(rec.StrategyID),
		string(rec.State),
		string(rec.OriginalLabel),
		string(rec.FinalLabel),
		rec.Confidence,
		corrected,
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// #endregion

// #region best-strategy

// BestStrategy returns the strategy with the highest decay-weighted
// resolution score. A context scores its confidence when it was classified
// outright or corrected, and zero when it stayed in review. Strategies with
// fewer than minCount rows are ignored; ("", 0, nil) means none qualified.
func (m *OutcomeMemory) BestStrategy(minCount int) (StrategyID, float64, error) {
	rows, err := m.db.Query(`
		SELECT strategy_id, state, confidence, corrected, created_at
		FROM classification_outcomes`)
	if err != nil {
		return "", 0, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	type stratAccum struct {
		weightedSum float64
		totalWeight float64
		count       int
	}

	now := m.now()
	halfLife := 7.0 * 24.0 // 7 days in hours
	accum := make(map[StrategyID]*stratAccum)

	for rows.Next() {
		var sid, state, createdAtStr string
		var confidence float64
		var corrected int
		if err := rows.Scan(&sid, &state, &confidence, &corrected, &createdAtStr); err != nil {
			return "", 0, fmt.Errorf("scan outcome: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			continue
		}
		weight := math.Exp(-now.Sub(createdAt).Hours() / halfLife)

		quality := 0.0
		if State(state) == StateClassified || corrected == 1 {
			quality = confidence
		}

		a, ok := accum[StrategyID(sid)]
		if !ok {
			a = &stratAccum{}
			accum[StrategyID(sid)] = a
		}
		a.weightedSum += quality * weight
		a.totalWeight += weight
		a.count++
	}
	if err := rows.Err(); err != nil {
		return "", 0, err
	}

	var bestID StrategyID
	bestScore := -1.0
	for sid, a := range accum {
		if a.count < minCount || a.totalWeight == 0 {
			continue
		}
		avg := a.weightedSum / a.totalWeight
		if avg > bestScore || (avg == bestScore && sid < bestID) {
			bestScore = avg
			bestID = sid
		}
	}
	if bestID == "" {
		return "", 0, nil
	}
	return bestID, bestScore, nil
}

// #endregion

// #region stats

// Stats aggregates every recorded outcome by strategy.
func (m *OutcomeMemory) Stats() (map[StrategyID]StrategyStats, error) {
	rows, err := m.db.Query(`
		SELECT strategy_id,
		       COUNT(*),
		       SUM(CASE WHEN state = ? THEN 1 ELSE 0 END),
		       SUM(corrected),
		       AVG(confidence)
		FROM classification_outcomes
		GROUP BY strategy_id`, string(StateNeedsReview))
	if err != nil {
		return nil, fmt.Errorf("query outcome stats: %w", err)
	}
	defer rows.Close()

	out := make(map[StrategyID]StrategyStats)
	for rows.Next() {
		var sid string
		var s StrategyStats
		if err := rows.Scan(&sid, &s.Total, &s.NeedsReview, &s.Corrected, &s.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scan outcome stats: %w", err)
		}
		out[StrategyID(sid)] = s
	}
	return out, rows.Err()
}

// #endregion
