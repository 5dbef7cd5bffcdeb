package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestFileStorage_SaveAndLoad(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error creating storage, got: %v", err)
	}
	ctx := context.Background()

	saved := map[string]string{"101": "https://example.com/item/101"}
	if err := storage.Save(ctx, "seen_kufar_test", saved); err != nil {
		t.Fatalf("Expected no error on save, got: %v", err)
	}

	var loaded map[string]string
	if err := storage.Load(ctx, "seen_kufar_test", &loaded); err != nil {
		t.Fatalf("Expected no error on load, got: %v", err)
	}
	if loaded["101"] != saved["101"] {
		t.Errorf("Expected loaded value %s, got %s", saved["101"], loaded["101"])
	}
}

func TestFileStorage_LoadMissingKey(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error creating storage, got: %v", err)
	}

	var dest map[string]string
	err = storage.Load(context.Background(), "never_saved", &dest)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing key, got: %v", err)
	}
}

func TestFileStorage_DeleteAndExists(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error creating storage, got: %v", err)
	}
	ctx := context.Background()

	if err := storage.Save(ctx, "seen_realt_test", map[string]int{"a": 1}); err != nil {
		t.Fatalf("Expected no error on save, got: %v", err)
	}

	exists, err := storage.Exists(ctx, "seen_realt_test")
	if err != nil {
		t.Fatalf("Expected no error on exists, got: %v", err)
	}
	if !exists {
		t.Error("Expected key to exist after save")
	}

	if err := storage.Delete(ctx, "seen_realt_test"); err != nil {
		t.Fatalf("Expected no error on delete, got: %v", err)
	}

	exists, err = storage.Exists(ctx, "seen_realt_test")
	if err != nil {
		t.Fatalf("Expected no error on exists, got: %v", err)
	}
	if exists {
		t.Error("Expected key to be gone after delete")
	}

	// Deleting a missing key is not an error
	if err := storage.Delete(ctx, "seen_realt_test"); err != nil {
		t.Errorf("Expected no error deleting missing key, got: %v", err)
	}
}

func TestFileStorage_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("Expected no error creating storage, got: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := storage.Save(ctx, "seen_kufar_test", map[string]int{"n": i}); err != nil {
			t.Fatalf("Expected no error on save, got: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Expected no error reading dir, got: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("Expected no leftover temp files, found %s", entry.Name())
		}
	}
}

func TestFileStorage_PrettyPrintsState(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("Expected no error creating storage, got: %v", err)
	}

	if err := storage.Save(context.Background(), "seen_kufar_test",
		map[string]string{"101": "x"}); err != nil {
		t.Fatalf("Expected no error on save, got: %v", err)
	}

	raw, err := os.ReadFile(dir + "/seen_kufar_test.json")
	if err != nil {
		t.Fatalf("Expected no error reading state file, got: %v", err)
	}
	if !strings.Contains(string(raw), "\n") {
		t.Error("Expected state file to be pretty-printed for manual inspection")
	}
}
