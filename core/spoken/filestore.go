package spoken

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists ledger records as a JSON file, written atomically via a
// temp file rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() ([]Record, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read spoken ledger file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spoken ledger file: %w", err)
	}

	return records, nil
}

func (s *FileStore) Save(records []Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal spoken ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create spoken ledger directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write spoken ledger file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace spoken ledger file: %w", err)
	}

	return nil
}
