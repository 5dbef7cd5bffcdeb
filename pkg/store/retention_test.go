package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"flatwatch-go/pkg/listing"
)

func record(id string, ts int64) listing.Record {
	return listing.Record{
		ID:        id,
		URL:       "https://example.com/item/" + id,
		FirstSeen: time.Unix(ts, 0),
	}
}

func TestScope_Key(t *testing.T) {
	scope := Scope{Platform: "kufar", Instance: "minsk"}
	if scope.Key() != "seen_kufar_minsk" {
		t.Errorf("Expected key seen_kufar_minsk, got %s", scope.Key())
	}
}

func TestRetentionStore_UpsertAndContains(t *testing.T) {
	rs := NewRetentionStore(NewMemoryStorage(),
		Scope{Platform: "kufar", Instance: "test"}, Options{})
	rs.Load(context.Background())

	if rs.Contains("101") {
		t.Error("Expected empty store to contain nothing")
	}

	rs.Upsert(record("101", 100))
	if !rs.Contains("101") {
		t.Error("Expected store to contain id after upsert")
	}

	// Re-upserting the same id overwrites, it never duplicates
	rs.Upsert(record("101", 200))
	if rs.Len() != 1 {
		t.Errorf("Expected 1 record after duplicate upsert, got %d", rs.Len())
	}
}

func TestRetentionStore_EvictionScenario(t *testing.T) {
	rs := NewRetentionStore(NewMemoryStorage(),
		Scope{Platform: "kufar", Instance: "test"},
		Options{MaxSize: 2, RemoveCount: 1})
	ctx := context.Background()

	rs.Upsert(record("A", 100))
	rs.Upsert(record("B", 200))
	rs.Upsert(record("C", 50))

	if err := rs.Persist(ctx); err != nil {
		t.Fatalf("Expected no error on persist, got: %v", err)
	}

	// With MaxSize=2 and RemoveCount=1 eviction keeps the single newest
	// record, not MaxSize-1 of them
	if rs.Len() != 1 {
		t.Fatalf("Expected exactly 1 record after eviction, got %d", rs.Len())
	}
	if !rs.Contains("B") {
		t.Error("Expected newest record B to survive eviction")
	}
	if rs.Contains("A") || rs.Contains("C") {
		t.Error("Expected A and C to be evicted")
	}
}

func TestRetentionStore_EvictionKeepsNewestByRank(t *testing.T) {
	rs := NewRetentionStore(NewMemoryStorage(),
		Scope{Platform: "realt", Instance: "test"},
		Options{MaxSize: 5, RemoveCount: 2})
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		rs.Upsert(record(strconv.Itoa(i), int64(i*100)))
	}

	if err := rs.Persist(ctx); err != nil {
		t.Fatalf("Expected no error on persist, got: %v", err)
	}

	if rs.Len() != 3 {
		t.Fatalf("Expected 3 records retained, got %d", rs.Len())
	}
	for _, id := range []string{"6", "7", "8"} {
		if !rs.Contains(id) {
			t.Errorf("Expected newest record %s to be retained", id)
		}
	}
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		if rs.Contains(id) {
			t.Errorf("Expected old record %s to be evicted", id)
		}
	}
}

func TestRetentionStore_NoEvictionAtCap(t *testing.T) {
	rs := NewRetentionStore(NewMemoryStorage(),
		Scope{Platform: "kufar", Instance: "test"},
		Options{MaxSize: 3, RemoveCount: 2})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		rs.Upsert(record(strconv.Itoa(i), int64(i)))
	}

	if err := rs.Persist(ctx); err != nil {
		t.Fatalf("Expected no error on persist, got: %v", err)
	}

	// Eviction triggers only above the cap, not at it
	if rs.Len() != 3 {
		t.Errorf("Expected all 3 records retained at the cap, got %d", rs.Len())
	}
}

func TestRetentionStore_CapInvariant(t *testing.T) {
	rs := NewRetentionStore(NewMemoryStorage(),
		Scope{Platform: "kufar", Instance: "test"},
		Options{MaxSize: 10, RemoveCount: 7})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		rs.Upsert(record(strconv.Itoa(i), int64(i)))
		if i%5 == 4 {
			if err := rs.Persist(ctx); err != nil {
				t.Fatalf("Expected no error on persist, got: %v", err)
			}
			if rs.Len() > 10 {
				t.Errorf("Expected at most 10 records after persist, got %d", rs.Len())
			}
		}
	}
}

func TestRetentionStore_RoundTrip(t *testing.T) {
	storage := NewMemoryStorage()
	scope := Scope{Platform: "realt", Instance: "test"}
	ctx := context.Background()

	first := NewRetentionStore(storage, scope, Options{})
	first.Load(ctx)
	first.Upsert(record("10", 100))
	first.Upsert(record("20", 200))
	if err := first.Persist(ctx); err != nil {
		t.Fatalf("Expected no error on persist, got: %v", err)
	}

	second := NewRetentionStore(storage, scope, Options{})
	second.Load(ctx)

	if second.Len() != 2 {
		t.Fatalf("Expected 2 records after reload, got %d", second.Len())
	}
	if !second.Contains("10") || !second.Contains("20") {
		t.Error("Expected reloaded store to contain both persisted ids")
	}
	if second.Contains("30") {
		t.Error("Expected reloaded store to not contain unseen ids")
	}
}

func TestRetentionStore_RecordsNewestFirst(t *testing.T) {
	rs := NewRetentionStore(NewMemoryStorage(),
		Scope{Platform: "kufar", Instance: "test"}, Options{})

	rs.Upsert(record("old", 100))
	rs.Upsert(record("newest", 300))
	rs.Upsert(record("middle", 200))

	records := rs.Records()
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].ID != "newest" || records[1].ID != "middle" || records[2].ID != "old" {
		t.Errorf("Expected newest-first order, got %s, %s, %s",
			records[0].ID, records[1].ID, records[2].ID)
	}
}

func TestRetentionStore_CorruptStateStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("Expected no error creating storage, got: %v", err)
	}

	scope := Scope{Platform: "kufar", Instance: "test"}
	path := filepath.Join(dir, scope.Key()+".json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0644); err != nil {
		t.Fatalf("Expected no error writing corrupt file, got: %v", err)
	}

	ctx := context.Background()
	rs := NewRetentionStore(storage, scope, Options{})
	rs.Load(ctx)

	if rs.Len() != 0 {
		t.Errorf("Expected empty store after corrupt state, got %d records", rs.Len())
	}

	// The next persist replaces the corrupt file with valid state
	rs.Upsert(record("7", 70))
	if err := rs.Persist(ctx); err != nil {
		t.Fatalf("Expected no error on persist, got: %v", err)
	}

	reloaded := NewRetentionStore(storage, scope, Options{})
	reloaded.Load(ctx)
	if !reloaded.Contains("7") {
		t.Error("Expected recovered state to contain the new record")
	}
}

func TestRetentionStore_MissingStateStartsEmpty(t *testing.T) {
	rs := NewRetentionStore(NewMemoryStorage(),
		Scope{Platform: "kufar", Instance: "fresh"}, Options{})
	rs.Load(context.Background())

	if rs.Len() != 0 {
		t.Errorf("Expected empty store when no state exists, got %d records", rs.Len())
	}
}

type brokenStorage struct{}

func (brokenStorage) Save(ctx context.Context, key string, data interface{}) error {
	return errors.New("disk full")
}

func (brokenStorage) Load(ctx context.Context, key string, dest interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

func (brokenStorage) Delete(ctx context.Context, key string) error {
	return nil
}

func (brokenStorage) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func TestRetentionStore_PersistReportsWriteFailure(t *testing.T) {
	rs := NewRetentionStore(brokenStorage{},
		Scope{Platform: "kufar", Instance: "test"}, Options{})
	ctx := context.Background()
	rs.Load(ctx)
	rs.Upsert(record("1", 1))

	if err := rs.Persist(ctx); err == nil {
		t.Error("Expected persist to report the write failure")
	}
	if !rs.Contains("1") {
		t.Error("Expected in-memory records to survive a failed persist")
	}
}
