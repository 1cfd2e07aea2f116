package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"swirlPool/internal/ledger"
)

// FileStateStore stores the snapshot in a local JSON file.
type FileStateStore struct {
	Path string
}

type stateRecord struct {
	Snapshot  *ledger.Snapshot `json:"snapshot"`
	UpdatedAt string           `json:"updated_at"`
}

func (s *FileStateStore) Load(ctx context.Context) (*ledger.Snapshot, bool, error) {
	if s == nil || s.Path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read state: %w", err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("parse state: %w", err)
	}
	if rec.Snapshot == nil {
		return nil, false, fmt.Errorf("parse state: missing snapshot")
	}
	return rec.Snapshot, true, nil
}

func (s *FileStateStore) Save(ctx context.Context, snap *ledger.Snapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	rec := stateRecord{
		Snapshot:  snap,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := WriteJSONFile(s.Path, rec); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// WriteJSONFile replaces path with the indented JSON of v. The data is
// written to a sibling tmp file first so readers never see a partial file.
func WriteJSONFile(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	return os.Rename(tmp, path)
}
