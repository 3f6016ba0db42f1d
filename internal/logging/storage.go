package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File names inside the errors directory.
const (
	AllErrorsFile          = "all_errors.jsonl"
	ClassificationFile     = "classification_errors.jsonl"
	UnstableOutputsFile    = "unstable_outputs.jsonl"
	RefinementFailuresFile = "refinement_failures.jsonl"
)

// typeFiles names the dedicated file for the types that have one.
var typeFiles = map[ErrorType]string{
	ClassificationError: ClassificationFile,
	InconsistentOutput:  UnstableOutputsFile,
	RefinementFailed:    RefinementFailuresFile,
}

// #region storage
// Storage keeps records under a directory: every record in the full log, and
// three of the types again in their own file.
type Storage struct {
	mu  sync.Mutex
	dir string
}

// NewStorage creates dir if needed.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create errors dir: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Storage) Dir() string { return s.dir }

// Append writes rec to the full log and to its type file when it has one.
func (s *Storage) Append(rec ErrorRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode error record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendLine(filepath.Join(s.dir, AllErrorsFile), line); err != nil {
		return err
	}
	if name, ok := typeFiles[rec.ErrorType]; ok {
		if err := appendLine(filepath.Join(s.dir, name), line); err != nil {
			return err
		}
	}
	return nil
}

// Load reads records of type t. An empty t loads everything. Types with a
// dedicated file read only that file; the rest filter the full log.
func (s *Storage) Load(t ErrorType) ([]ErrorRecord, error) {
	path := filepath.Join(s.dir, AllErrorsFile)
	filter := t
	if name, ok := typeFiles[t]; ok {
		path = filepath.Join(s.dir, name)
		filter = ""
	}

	s.mu.Lock()
	recs, err := readRecords(path)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return recs, nil
	}
	out := recs[:0]
	for _, r := range recs {
		if r.ErrorType == filter {
			out = append(out, r)
		}
	}
	return out, nil
}

// #endregion storage

// #region file-helpers
func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readRecords(path string) ([]ErrorRecord, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []ErrorRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	out := []ErrorRecord{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec ErrorRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), lineNo, err)
		}
		if !rec.ErrorType.Valid() {
			return nil, fmt.Errorf("%s line %d: unknown error type %q", filepath.Base(path), lineNo, rec.ErrorType)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// #endregion file-helpers
