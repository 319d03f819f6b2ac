package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// Store persists adapter snapshots per collection. Two interchangeable
// backends exist: JSON files and the document store.
type Store interface {
	Save(ctx context.Context, record *models.AdapterRecord) error
	// Load returns nil when no adapter has been persisted yet.
	Load(ctx context.Context, collectionID string) (*models.AdapterRecord, error)
	Delete(ctx context.Context, collectionID string) error
}

// FileStore keeps one <collectionId>.json per adapter under a directory.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the storage directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "./adapters"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create adapter storage dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(collectionID string) string {
	return filepath.Join(s.dir, collectionID+".json")
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, record *models.AdapterRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal adapter: %w", err)
	}

	// Write-then-rename so a crash mid-write can't corrupt the snapshot.
	tmp := s.path(record.CollectionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write adapter file: %w", err)
	}
	if err := os.Rename(tmp, s.path(record.CollectionID)); err != nil {
		return fmt.Errorf("failed to replace adapter file: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, collectionID string) (*models.AdapterRecord, error) {
	data, err := os.ReadFile(s.path(collectionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read adapter file: %w", err)
	}

	var record models.AdapterRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse adapter file: %w", err)
	}
	return &record, nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, collectionID string) error {
	err := os.Remove(s.path(collectionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete adapter file: %w", err)
	}
	return nil
}
