package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStorage keeps marshaled values in a map. Used by tests and by
// throwaway runs where dedup history does not need to survive the process.
type MemoryStorage struct {
	data map[string][]byte
	mu   sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string][]byte),
	}
}

func (ms *MemoryStorage) Save(ctx context.Context, key string, data interface{}) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	ms.data[key] = jsonData
	return nil
}

func (ms *MemoryStorage) Load(ctx context.Context, key string, dest interface{}) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	jsonData, exists := ms.data[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if err := json.Unmarshal(jsonData, dest); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return nil
}

func (ms *MemoryStorage) Delete(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.data, key)
	return nil
}

func (ms *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	_, exists := ms.data[key]
	return exists, nil
}
