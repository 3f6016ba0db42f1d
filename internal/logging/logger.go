package logging

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultErrorsDir is where the pipeline keeps error logs by default.
const DefaultErrorsDir = "data/errors"

// #region error-logger
// ErrorLogger classifies, stamps and persists error records.
type ErrorLogger struct {
	storage *Storage
	db      *sql.DB
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewErrorLogger creates a logger over storage. db may be nil; when set,
// every record is mirrored into its error_log table.
func NewErrorLogger(storage *Storage, db *sql.DB, logger *zap.Logger) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogger{
		storage: storage,
		db:      db,
		logger:  logger.Named("errlog"),
		now:     time.Now,
		newID:   newErrorID,
	}
}

// Storage returns the underlying file storage.
func (l *ErrorLogger) Storage() *Storage { return l.storage }

// Log fills a missing id and timestamp, classifies records typed other or
// unset, and appends. The stored record is returned.
func (l *ErrorLogger) Log(rec ErrorRecord) (ErrorRecord, error) {
	if rec.ErrorID == "" {
		rec.ErrorID = l.newID()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = Timestamp(l.now())
	}
	if rec.SourceModule == "" {
		rec.SourceModule = SourceOther
	}
	if rec.Meta == nil {
		rec.Meta = map[string]any{}
	}
	if rec.ErrorType == "" || rec.ErrorType == Other {
		rec.ErrorType = Classify(rec)
	}

	if err := l.storage.Append(rec); err != nil {
		return rec, err
	}
	if l.db != nil {
		if err := MirrorRecord(l.db, rec); err != nil {
			l.logger.Warn("error mirror failed", zap.String("error_id", rec.ErrorID), zap.Error(err))
		}
	}
	l.logger.Debug("error logged",
		zap.String("error_id", rec.ErrorID),
		zap.String("context_id", rec.ContextID),
		zap.String("type", string(rec.ErrorType)))
	return rec, nil
}

// Load reads records of type t; empty t reads all.
func (l *ErrorLogger) Load(t ErrorType) ([]ErrorRecord, error) {
	return l.storage.Load(t)
}

func newErrorID() string {
	return "err_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// #endregion error-logger
