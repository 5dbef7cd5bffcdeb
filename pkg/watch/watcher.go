package watch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"flatwatch-go/pkg/listing"
	"flatwatch-go/pkg/logger"
	"flatwatch-go/pkg/notify"
	"flatwatch-go/pkg/source"
	"flatwatch-go/pkg/store"
)

// Cycle states as exposed on the status endpoint.
const (
	StateIdle       = "idle"
	StateFetching   = "fetching"
	StateDiffing    = "diffing"
	StateNotifying  = "notifying"
	StatePersisting = "persisting"
	StateSleeping   = "sleeping"
	StateFailed     = "failed"
)

// Config tunes the scan loop. Zero values fall back to the defaults applied
// in New.
type Config struct {
	MinInterval       time.Duration
	MaxInterval       time.Duration
	MaxRetries        int
	InitialRetryDelay time.Duration
	NotifyDelay       time.Duration
}

// CycleResult summarizes one platform's most recent cycle. PersistError is
// set when the cycle succeeded but its state could not be written; the next
// cycle retries with the enlarged in-memory diff, so nothing is lost.
type CycleResult struct {
	Platform     string    `json:"platform"`
	CycleID      string    `json:"cycle_id"`
	Found        int       `json:"found"`
	New          int       `json:"new"`
	Notified     int       `json:"notified"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	PersistError string    `json:"persist_error,omitempty"`
	State        string    `json:"state"`
	Timestamp    time.Time `json:"timestamp"`
}

type platformEntry struct {
	adapter source.Adapter
	store   *store.RetentionStore
}

// Watcher owns the scan loop: platforms run sequentially within one cycle, a
// failing platform never aborts its siblings, and the whole loop sleeps a
// jittered interval between cycles so repeated visits do not land on a fixed
// clock. It also owns the shared HTTP client and releases it on exit.
type Watcher struct {
	config   Config
	entries  []platformEntry
	notifier notify.Notifier
	client   *source.Client
	retrier  *Retrier
	audit    *logger.Audit
	log      *logger.Logger
	rng      *rand.Rand
	now      func() time.Time

	mu      sync.RWMutex
	states  map[string]string
	results map[string]CycleResult
}

func New(config Config, notifier notify.Notifier, client *source.Client, audit *logger.Audit) *Watcher {
	if config.MinInterval <= 0 {
		config.MinInterval = 5 * time.Minute
	}
	if config.MaxInterval < config.MinInterval {
		config.MaxInterval = config.MinInterval + 3*time.Minute
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.InitialRetryDelay <= 0 {
		config.InitialRetryDelay = 30 * time.Second
	}
	if config.NotifyDelay <= 0 {
		config.NotifyDelay = time.Second
	}

	return &Watcher{
		config:   config,
		notifier: notifier,
		client:   client,
		retrier:  NewRetrier(config.MaxRetries, config.InitialRetryDelay),
		audit:    audit,
		log:      logger.GetLogger().WithComponent("watcher"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		states:   make(map[string]string),
		results:  make(map[string]CycleResult),
	}
}

// Register adds a platform to the scan rotation. Registration order is scan
// order within each cycle.
func (w *Watcher) Register(adapter source.Adapter, st *store.RetentionStore) {
	w.entries = append(w.entries, platformEntry{adapter: adapter, store: st})
	w.setState(adapter.Platform(), StateIdle)
}

// Run loops scan cycles until the context is cancelled, then releases the
// HTTP client and returns nil. Cancellation is observed during fetches,
// notification delays, and the inter-cycle sleep.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.client.Close()

	w.log.WithField("platforms", len(w.entries)).Info("Watcher started")
	for {
		if ctx.Err() != nil {
			w.log.Info("Watcher stopped")
			return nil
		}

		w.RunOnce(ctx)

		sleep := w.sleepInterval()
		for _, entry := range w.entries {
			w.setState(entry.adapter.Platform(), StateSleeping)
		}
		w.log.WithField("duration", sleep.String()).Info("Cycle complete, sleeping")

		select {
		case <-ctx.Done():
			w.log.Info("Watcher stopped")
			return nil
		case <-time.After(sleep):
		}
	}
}

// RunOnce executes one full cycle across all registered platforms in order.
// A platform failure is contained; the remaining platforms still run.
func (w *Watcher) RunOnce(ctx context.Context) []CycleResult {
	cycleID := uuid.NewString()[:8]
	log := w.log.WithField("cycle_id", cycleID)

	if len(w.entries) == 0 {
		log.Warn("No platforms registered")
		return nil
	}
	log.WithField("platforms", len(w.entries)).Info("Starting scan cycle")

	results := make([]CycleResult, 0, len(w.entries))
	for _, entry := range w.entries {
		if ctx.Err() != nil {
			break
		}
		result := w.runPlatform(ctx, cycleID, entry)
		w.storeResult(result)
		results = append(results, result)
	}
	return results
}

func (w *Watcher) runPlatform(ctx context.Context, cycleID string, entry platformEntry) (result CycleResult) {
	platform := entry.adapter.Platform()
	log := w.log.WithFields(map[string]interface{}{
		"platform": platform,
		"cycle_id": cycleID,
	})

	result = CycleResult{
		Platform:  platform,
		CycleID:   cycleID,
		Timestamp: w.now(),
	}

	// Adapters chew on arbitrary third-party HTML; a panic there must not
	// take the sibling platforms down with it.
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.State = StateFailed
			result.Error = fmt.Sprintf("panic: %v", r)
			w.setState(platform, StateFailed)
			log.WithField("panic", r).Error("Platform cycle panicked")
		}
	}()

	w.setState(platform, StateFetching)
	var candidates []listing.Candidate
	err := w.retrier.Execute(ctx, func() error {
		var fetchErr error
		candidates, fetchErr = entry.adapter.FetchCandidates(ctx)
		return fetchErr
	})
	if err != nil {
		result.Success = false
		result.State = StateFailed
		result.Error = err.Error()
		w.setState(platform, StateFailed)
		log.WithError(err).Error("Fetch failed, cycle abandoned for this platform")
		w.audit.Event("cycle failed", map[string]interface{}{
			"platform": platform,
			"cycle_id": cycleID,
			"error":    err.Error(),
		})
		return result
	}
	result.Found = len(candidates)

	w.setState(platform, StateDiffing)
	var fresh []listing.Candidate
	for _, c := range candidates {
		if !entry.store.Contains(c.ID) {
			fresh = append(fresh, c)
		}
	}
	result.New = len(fresh)
	log.WithFields(map[string]interface{}{
		"found": result.Found,
		"new":   result.New,
	}).Info("Candidates diffed")

	w.setState(platform, StateNotifying)
	for i, c := range fresh {
		if i > 0 {
			// Pause between messages to respect downstream rate limits
			select {
			case <-ctx.Done():
				result.Success = false
				result.State = StateFailed
				result.Error = ctx.Err().Error()
				w.setState(platform, StateFailed)
				return result
			case <-time.After(w.config.NotifyDelay):
			}
		}

		if err := w.notifier.Send(ctx, notify.ListingMessage(platform, c)); err != nil {
			log.WithError(err).WithField("listing_id", c.ID).Error("Notification failed")
		} else {
			result.Notified++
		}
		w.audit.Event("new listing", map[string]interface{}{
			"platform": platform,
			"cycle_id": cycleID,
			"id":       c.ID,
			"url":      c.URL,
		})
	}

	w.setState(platform, StatePersisting)
	firstSeen := w.now()
	for _, c := range fresh {
		entry.store.Upsert(listing.NewRecord(c, firstSeen))
	}
	if err := entry.store.Persist(ctx); err != nil {
		// Keep running; the enlarged in-memory diff carries over to the
		// next cycle and persist is retried then
		result.PersistError = err.Error()
		log.WithError(err).Error("Persist failed, continuing with in-memory state")
	}

	result.Success = true
	result.State = StateIdle
	w.setState(platform, StateIdle)
	w.audit.Event("cycle complete", map[string]interface{}{
		"platform": platform,
		"cycle_id": cycleID,
		"found":    result.Found,
		"new":      result.New,
		"notified": result.Notified,
	})
	log.WithFields(map[string]interface{}{
		"found":    result.Found,
		"new":      result.New,
		"notified": result.Notified,
		"retained": entry.store.Len(),
	}).Info("Platform cycle complete")

	return result
}

// sleepInterval draws the jittered pause between cycles.
func (w *Watcher) sleepInterval() time.Duration {
	min, max := w.config.MinInterval, w.config.MaxInterval
	if max <= min {
		return min
	}
	return min + time.Duration(w.rng.Int63n(int64(max-min)))
}

func (w *Watcher) setState(platform, state string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states[platform] = state
}

func (w *Watcher) storeResult(result CycleResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results[result.Platform] = result
}

// States returns a snapshot of each platform's current cycle state.
func (w *Watcher) States() map[string]string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	states := make(map[string]string, len(w.states))
	for platform, state := range w.states {
		states[platform] = state
	}
	return states
}

// Results returns a snapshot of each platform's most recent cycle result.
func (w *Watcher) Results() map[string]CycleResult {
	w.mu.RLock()
	defer w.mu.RUnlock()

	results := make(map[string]CycleResult, len(w.results))
	for platform, result := range w.results {
		results[platform] = result
	}
	return results
}

// StoreSizes reports how many listings each platform's store retains.
func (w *Watcher) StoreSizes() map[string]int {
	sizes := make(map[string]int, len(w.entries))
	for _, entry := range w.entries {
		sizes[entry.adapter.Platform()] = entry.store.Len()
	}
	return sizes
}
