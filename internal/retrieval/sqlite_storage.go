package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const indexSchema = `
CREATE TABLE IF NOT EXISTS index_info (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	dim         INTEGER NOT NULL,
	metric      TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS index_vectors (
	position      INTEGER PRIMARY KEY,
	vector        BLOB NOT NULL,
	metadata_json TEXT
);
`

// #endregion schema

// #region store-struct

// SQLiteStorage keeps the index in two tables: one header row and one row per
// vector in insertion order.
type SQLiteStorage struct {
	db     *sql.DB
	ownsDB bool
}

// NewSQLiteStorage opens a SQLite database and runs migrations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	s, err := NewSQLiteStorageWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLiteStorageWithDB runs migrations on a database shared with other
// components.
func NewSQLiteStorageWithDB(db *sql.DB) (*SQLiteStorage, error) {
	if _, err := db.Exec(indexSchema); err != nil {
		return nil, fmt.Errorf("migrate index schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Close closes the database when this storage opened it.
func (s *SQLiteStorage) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// #endregion store-struct

// #region save
// Save replaces the stored index atomically.
func (s *SQLiteStorage) Save(ctx context.Context, ix *Indexer, meta []Metadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_vectors`); err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO index_info (id, dim, metric, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET dim = excluded.dim, metric = excluded.metric, updated_at = excluded.updated_at`,
		ix.dim, string(ix.metric), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert index info: %w", err)
	}

	for i, v := range ix.vecs {
		var metaPtr any
		if i < len(meta) {
			b, err := json.Marshal(meta[i])
			if err != nil {
				return fmt.Errorf("marshal metadata %d: %w", i, err)
			}
			metaPtr = string(b)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO index_vectors (position, vector, metadata_json) VALUES (?, ?, ?)`,
			i, encodeVector(v), metaPtr,
		); err != nil {
			return fmt.Errorf("insert vector %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// #endregion save

// #region load
// Load reads the stored index. Vectors without metadata get an empty record.
func (s *SQLiteStorage) Load(ctx context.Context) (*Indexer, []Metadata, error) {
	var dim int
	var metric string
	err := s.db.QueryRowContext(ctx, `SELECT dim, metric FROM index_info WHERE id = 1`).Scan(&dim, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("load index: no index stored")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load index info: %w", err)
	}
	ix, err := NewIndexer(dim, Metric(metric))
	if err != nil {
		return nil, nil, fmt.Errorf("load index: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT vector, metadata_json FROM index_vectors ORDER BY position`)
	if err != nil {
		return nil, nil, fmt.Errorf("load vectors: %w", err)
	}
	defer rows.Close()

	var vecs [][]float32
	meta := []Metadata{}
	for rows.Next() {
		var blob []byte
		var metaJSON sql.NullString
		if err := rows.Scan(&blob, &metaJSON); err != nil {
			return nil, nil, fmt.Errorf("scan vector: %w", err)
		}
		vecs = append(vecs, decodeVector(blob))
		m := Metadata{}
		if metaJSON.Valid {
			if err := json.Unmarshal([]byte(metaJSON.String), &m); err != nil {
				return nil, nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		meta = append(meta, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if err := ix.restore(vecs); err != nil {
		return nil, nil, err
	}
	return ix, meta, nil
}

// #endregion load
