// Package listing defines the data types shared between platform adapters,
// the retention store, and the notifier.
package listing

import "time"

// Candidate is one advertisement extracted from a platform page. The ID is
// the platform's own identifier for the ad, unique within that platform.
type Candidate struct {
	ID   string
	URL  string
	Page int
}

// Record is a Candidate that has entered the retention store. FirstSeen is
// stamped by the watcher at discovery time and drives eviction order.
type Record struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	FirstSeen time.Time `json:"timestamp"`
	Page      int       `json:"page,omitempty"`
}

// NewRecord stamps a candidate with its discovery time.
func NewRecord(c Candidate, now time.Time) Record {
	return Record{
		ID:        c.ID,
		URL:       c.URL,
		FirstSeen: now,
		Page:      c.Page,
	}
}
