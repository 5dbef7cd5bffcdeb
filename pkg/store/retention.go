package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"flatwatch-go/pkg/listing"
	"flatwatch-go/pkg/logger"
)

// Retention defaults. RemoveCount deliberately prunes far below the cap so
// eviction runs once in many cycles instead of shaving one record per cycle.
const (
	DefaultMaxSize     = 100
	DefaultRemoveCount = 70
)

// Scope identifies one isolated retention store: one platform watched by one
// named instance. Distinct instances never share durable state.
type Scope struct {
	Platform string
	Instance string
}

// Key is the durable-storage key for this scope.
func (s Scope) Key() string {
	return fmt.Sprintf("seen_%s_%s", s.Platform, s.Instance)
}

func (s Scope) String() string {
	return s.Platform + "/" + s.Instance
}

// Options tunes one retention store. Zero values fall back to the defaults
// above; Audit may be nil.
type Options struct {
	MaxSize     int
	RemoveCount int
	Audit       *logger.Audit
}

// RetentionStore is the bounded set of listings already seen within one
// scope. Membership drives notification dedup, so losing the whole set only
// causes duplicate notifications, never missed ones. All mutation happens on
// the single scan loop; the mutex exists for concurrent readers such as the
// status endpoint.
type RetentionStore struct {
	scope   Scope
	storage Storage
	opts    Options
	log     *logger.Logger
	audit   *logger.Audit

	mu      sync.Mutex
	records map[string]listing.Record
}

func NewRetentionStore(storage Storage, scope Scope, opts Options) *RetentionStore {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.RemoveCount <= 0 {
		opts.RemoveCount = DefaultRemoveCount
	}

	return &RetentionStore{
		scope:   scope,
		storage: storage,
		opts:    opts,
		log: logger.GetLogger().WithComponent("retention_store").
			WithField("scope", scope.String()),
		audit:   opts.Audit,
		records: make(map[string]listing.Record),
	}
}

// Load reads durable state for the scope. Absent or unreadable state yields
// an empty store; dedup history is rebuildable, so load never fails the
// caller. Corruption is logged and audited because it means duplicate
// notifications are coming.
func (rs *RetentionStore) Load(ctx context.Context) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var records map[string]listing.Record
	err := rs.storage.Load(ctx, rs.scope.Key(), &records)
	switch {
	case err == nil && records != nil:
		rs.records = records
		rs.log.WithField("records", len(records)).Debug("Loaded seen listings")
		rs.audit.Event("store loaded", map[string]interface{}{
			"scope":   rs.scope.String(),
			"records": len(records),
		})
	case errors.Is(err, ErrNotFound):
		rs.records = make(map[string]listing.Record)
		rs.log.Debug("No previous state, starting empty")
	default:
		rs.records = make(map[string]listing.Record)
		rs.log.WithError(err).Warn("State unreadable, starting empty")
		rs.audit.Event("store reset", map[string]interface{}{
			"scope": rs.scope.String(),
			"error": fmt.Sprint(err),
		})
	}
}

// Contains reports whether the listing id has been seen in this scope.
func (rs *RetentionStore) Contains(id string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	_, ok := rs.records[id]
	return ok
}

// Upsert inserts or overwrites the record for its id. The change is
// in-memory only until Persist runs.
func (rs *RetentionStore) Upsert(record listing.Record) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.records[record.ID] = record
}

func (rs *RetentionStore) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	return len(rs.records)
}

// Records returns the retained listings newest-first.
func (rs *RetentionStore) Records() []listing.Record {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	records := make([]listing.Record, 0, len(rs.records))
	for _, record := range rs.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].FirstSeen.After(records[j].FirstSeen)
	})
	return records
}

// Persist applies eviction and writes the store durably. Eviction only
// triggers once the record count exceeds MaxSize, and then truncates to the
// newest MaxSize-RemoveCount records in one pass.
func (rs *RetentionStore) Persist(ctx context.Context) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if evicted := rs.evict(); evicted > 0 {
		rs.log.WithFields(map[string]interface{}{
			"evicted": evicted,
			"kept":    len(rs.records),
		}).Info("Evicted old listings")
		rs.audit.Event("store evicted", map[string]interface{}{
			"scope":   rs.scope.String(),
			"evicted": evicted,
			"kept":    len(rs.records),
		})
	}

	if err := rs.storage.Save(ctx, rs.scope.Key(), rs.records); err != nil {
		rs.audit.Event("store persist failed", map[string]interface{}{
			"scope": rs.scope.String(),
			"error": fmt.Sprint(err),
		})
		return fmt.Errorf("failed to persist %s: %w", rs.scope, err)
	}

	rs.log.WithField("records", len(rs.records)).Debug("Persisted seen listings")
	rs.audit.Event("store persisted", map[string]interface{}{
		"scope":   rs.scope.String(),
		"records": len(rs.records),
	})
	return nil
}

// evict truncates to the newest MaxSize-RemoveCount records when the store
// has grown past MaxSize. Returns the number of records dropped. Caller
// holds the lock.
func (rs *RetentionStore) evict() int {
	if len(rs.records) <= rs.opts.MaxSize {
		return 0
	}

	keep := rs.opts.MaxSize - rs.opts.RemoveCount
	if keep < 0 {
		keep = 0
	}

	records := make([]listing.Record, 0, len(rs.records))
	for _, record := range rs.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].FirstSeen.After(records[j].FirstSeen)
	})

	evicted := len(records) - keep
	kept := make(map[string]listing.Record, keep)
	for _, record := range records[:keep] {
		kept[record.ID] = record
	}
	rs.records = kept
	return evicted
}
