package refinement

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultCorrectionLogPath is where the pipeline keeps proposals by default.
const DefaultCorrectionLogPath = "data/predictions/corrections.jsonl"

// #region correction-log
// CorrectionLog is an append-only JSONL file of proposals.
type CorrectionLog struct {
	mu   sync.Mutex
	path string
}

// NewCorrectionLog creates the parent directory and returns a log at path.
func NewCorrectionLog(path string) (*CorrectionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create correction log dir: %w", err)
	}
	return &CorrectionLog{path: path}, nil
}

// Path returns the log file path.
func (l *CorrectionLog) Path() string { return l.path }

// Append writes p as one line.
func (l *CorrectionLog) Append(p CorrectionProposal) error {
	line, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode correction: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open correction log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write correction: %w", err)
	}
	return nil
}

// #endregion correction-log

// #region load
// LoadCorrections reads every proposal in path. A missing file is empty.
func LoadCorrections(path string) ([]CorrectionProposal, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open corrections: %w", err)
	}
	defer f.Close()

	var out []CorrectionProposal
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var p CorrectionProposal
		if err := json.Unmarshal(sc.Bytes(), &p); err != nil {
			return nil, fmt.Errorf("corrections line %d: %w", lineNo, err)
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read corrections: %w", err)
	}
	return out, nil
}

// #endregion load
