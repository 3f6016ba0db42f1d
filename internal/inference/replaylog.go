package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/danielpatrickdp/citeloop/internal/prediction"
)

// #region record

// ReplayRecord is one logged inference call.
type ReplayRecord struct {
	Prompt   string     `json:"prompt"`
	Output   string     `json:"output"`
	Metadata ReplayMeta `json:"metadata"`
}

// ReplayMeta is the result meta plus what a replay needs to re-decode.
type ReplayMeta struct {
	Meta
	ContextID  string             `json:"context_id"`
	Label      prediction.Label   `json:"predicted_label"`
	Confidence float64            `json:"confidence"`
	Logits     map[string]float64 `json:"logits,omitempty"`
}

// #endregion record

// #region log

// ReplayLog appends inference records to a JSONL file.
type ReplayLog struct {
	mu   sync.Mutex
	path string
}

// NewReplayLog creates the log file and its parent directory if missing.
func NewReplayLog(path string) (*ReplayLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create replay log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open replay log: %w", err)
	}
	f.Close()
	return &ReplayLog{path: path}, nil
}

// Path returns the log file path.
func (l *ReplayLog) Path() string { return l.path }

// Append writes one record as a single line.
func (l *ReplayLog) Append(rec ReplayRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode replay record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open replay log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write replay record: %w", err)
	}
	return nil
}

// LoadReplayLog reads every record in path.
func LoadReplayLog(path string) ([]ReplayRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay log: %w", err)
	}
	defer f.Close()

	var out []ReplayRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec ReplayRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("replay log line %d: %w", lineNo, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read replay log: %w", err)
	}
	return out, nil
}

// #endregion log

// #region recording

type recordingEngine struct {
	inner Engine
	log   *ReplayLog
}

// Recording wraps inner so every successful call is appended to log.
func Recording(inner Engine, log *ReplayLog) Engine {
	if log == nil {
		return inner
	}
	return &recordingEngine{inner: inner, log: log}
}

func (e *recordingEngine) Name() string { return e.inner.Name() }

func (e *recordingEngine) Predict(ctx context.Context, req Request) (Result, error) {
	res, err := e.inner.Predict(ctx, req)
	if err != nil {
		return res, err
	}
	rec := ReplayRecord{
		Prompt: res.Prompt,
		Output: res.RawOutput,
		Metadata: ReplayMeta{
			Meta:       res.Meta,
			ContextID:  res.ContextID,
			Label:      res.PredictedLabel,
			Confidence: res.Confidence,
			Logits:     res.Logits,
		},
	}
	if err := e.log.Append(rec); err != nil {
		return res, err
	}
	return res, nil
}

// #endregion recording
