package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"deltaHedge/internal/model"
)

// JsonlStorage appends report snapshots to a JSONL file, one report per line.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

type jsonlLine struct {
	TakenAt string           `json:"taken_at"`
	Wallet  string           `json:"wallet,omitempty"`
	Report  model.ReportView `json:"report"`
}

// PutReports appends every report of the snapshot as its own JSON line,
// tagged with the snapshot time and wallet.
func (s *JsonlStorage) PutReports(snapshot Snapshot) error {
	if len(snapshot.Reports) == 0 {
		return nil
	}
	if s.path == "" {
		return fmt.Errorf("output path is required")
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, report := range snapshot.Reports {
		line, err := json.Marshal(jsonlLine{TakenAt: snapshot.TakenAt, Wallet: snapshot.Wallet, Report: report})
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
