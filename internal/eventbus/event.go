// Package eventbus implements a bounded broadcast of cache-item change
// events, with a Lagged(n) signal for slow subscribers instead of blocking
// producers. One versioned event type carries all three mutation variants,
// discriminated by Kind.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventVersion1 is the current wire schema version for CacheItemEvent.
const EventVersion1 = 1

// Kind discriminates the three item-change variants.
type Kind string

const (
	KindAdded   Kind = "added"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

// CacheItemEvent is published after a Store mutation commits successfully;
// subscribers see events in store-commit order per cache.
type CacheItemEvent struct {
	Version   int       `json:"version"`
	Kind      Kind      `json:"kind"`
	CacheName string    `json:"cache_name"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	ValueSize *int64    `json:"value_size,omitempty"`
	TTLMs     *int64    `json:"ttl_ms,omitempty"`
}

// ToJSON serializes the event for the SSE stream.
func (e CacheItemEvent) ToJSON() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache item event: %w", err)
	}
	return b, nil
}

// SSEName returns the server-sent-event name for this event:
// item.added, item.updated, or item.deleted.
func (e CacheItemEvent) SSEName() string {
	return "item." + string(e.Kind)
}

// Filter restricts delivery to a subscriber by cache name and/or event
// kind. A nil/empty set matches everything.
type Filter struct {
	CacheNames map[string]struct{}
	Kinds      map[Kind]struct{}
}

// Match reports whether e passes f.
func (f Filter) Match(e CacheItemEvent) bool {
	if len(f.CacheNames) > 0 {
		if _, ok := f.CacheNames[e.CacheName]; !ok {
			return false
		}
	}
	if len(f.Kinds) > 0 {
		if _, ok := f.Kinds[e.Kind]; !ok {
			return false
		}
	}
	return true
}
