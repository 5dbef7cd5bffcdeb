package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"flatwatch-go/pkg/logger"
)

// FileStorage persists each key as a pretty-printed JSON file under dataDir.
// Writes go through a temp file plus rename so a crash mid-write never
// leaves a half-written state file behind.
type FileStorage struct {
	dataDir string
	log     *logger.Logger
	mu      sync.RWMutex
}

func NewFileStorage(dataDir string) (*FileStorage, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &FileStorage{
		dataDir: dataDir,
		log:     logger.GetLogger().WithComponent("file_storage"),
	}, nil
}

func (fs *FileStorage) Save(ctx context.Context, key string, data interface{}) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	filePath := fs.filePath(key)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace file: %w", err)
	}

	fs.log.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(jsonData),
	}).Debug("Data saved")

	return nil
}

func (fs *FileStorage) Load(ctx context.Context, key string, dest interface{}) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	jsonData, err := os.ReadFile(fs.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(jsonData, dest); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return nil
}

func (fs *FileStorage) Delete(ctx context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.filePath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (fs *FileStorage) Exists(ctx context.Context, key string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, err := os.Stat(fs.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (fs *FileStorage) filePath(key string) string {
	return filepath.Join(fs.dataDir, key+".json")
}
