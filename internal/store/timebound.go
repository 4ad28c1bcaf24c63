package store

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/carbonlabs/carbon/internal/domain"
)

const timeBoundShardCount = 16

// timeEntry is one resident TTL-bounded entry.
type timeEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	elem      *list.Element // LRU order, used only when a cap is configured
}

type timeShard struct {
	mu      sync.Mutex
	items   map[string]*timeEntry
	lru     *list.List // MRU at Front; only populated when maxEntries > 0
	maxSize int
}

// TimeBoundStore is the per-shard-locked TTL cache backend: entries are
// reaped lazily on access and eagerly by a background sweeper, with an
// optional entry-count cap evicting LRU on overflow. Per-entry TTL is
// accepted (ttlMs parameter) but coalesces to the cache's default TTL.
type TimeBoundStore struct {
	shards     []*timeShard
	defaultTTL time.Duration
	stop       chan struct{}
	wg         sync.WaitGroup
}

// NewTimeBoundStore builds a TTL store with the given default TTL and
// optional entry cap (0 disables the cap), and starts its background
// sweeper.
func NewTimeBoundStore(cfg domain.CacheConfig, maxEntries int, sweepInterval time.Duration) *TimeBoundStore {
	ttl := time.Duration(cfg.DefaultTTLMs) * time.Millisecond
	if ttl <= 0 {
		ttl = domain.DefaultTimeBoundTTLMs * time.Millisecond
	}
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}

	perShardCap := 0
	if maxEntries > 0 {
		perShardCap = maxEntries / timeBoundShardCount
		if perShardCap <= 0 {
			perShardCap = 1
		}
	}

	shards := make([]*timeShard, timeBoundShardCount)
	for i := range shards {
		shards[i] = &timeShard{
			items:   make(map[string]*timeEntry),
			lru:     list.New(),
			maxSize: perShardCap,
		}
	}

	s := &TimeBoundStore{
		shards:     shards,
		defaultTTL: ttl,
		stop:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop(sweepInterval)
	return s
}

func (s *TimeBoundStore) shardFor(key []byte) *timeShard {
	h := xxhash.Sum64(key)
	return s.shards[h%uint64(len(s.shards))]
}

func (s *TimeBoundStore) Put(_ context.Context, key, value []byte, _ *int64) (PutResponse, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	k := string(key)
	expiresAt := time.Now().Add(s.defaultTTL)
	if e, ok := sh.items[k]; ok {
		e.value = value
		e.expiresAt = expiresAt
		if sh.maxSize > 0 {
			sh.lru.MoveToFront(e.elem)
		}
		return PutResponse{Created: true}, nil
	}

	if sh.maxSize > 0 && len(sh.items) >= sh.maxSize {
		sh.evictLRULocked()
	}

	e := &timeEntry{key: k, value: value, expiresAt: expiresAt}
	if sh.maxSize > 0 {
		e.elem = sh.lru.PushFront(e)
	}
	sh.items[k] = e
	return PutResponse{Created: true}, nil
}

func (s *TimeBoundStore) Get(_ context.Context, key []byte) (GetResponse, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[string(key)]
	if !ok {
		return GetResponse{}, notFound()
	}
	if time.Now().After(e.expiresAt) {
		sh.removeLocked(e)
		return GetResponse{}, notFound()
	}
	if sh.maxSize > 0 {
		sh.lru.MoveToFront(e.elem)
	}
	remaining := int64(time.Until(e.expiresAt) / time.Millisecond)
	if remaining < 0 {
		remaining = 0
	}
	return GetResponse{Found: true, Value: e.value, TTLMsRemaining: &remaining}, nil
}

func (s *TimeBoundStore) Delete(_ context.Context, key []byte) (DeleteResponse, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[string(key)]
	if !ok {
		return DeleteResponse{Deleted: false}, nil
	}
	sh.removeLocked(e)
	return DeleteResponse{Deleted: true}, nil
}

func (s *TimeBoundStore) Len() int64 {
	var n int64
	now := time.Now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, e := range sh.items {
			if now.Before(e.expiresAt) {
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

func (s *TimeBoundStore) SizeBytes() int64 {
	var n int64
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.items {
			n += int64(len(k) + len(e.value))
		}
		sh.mu.Unlock()
	}
	return n
}

// Close stops the background sweeper goroutine.
func (s *TimeBoundStore) Close() {
	close(s.stop)
	s.wg.Wait()
}

func (s *TimeBoundStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *TimeBoundStore) sweepExpired() {
	now := time.Now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		var expired []*timeEntry
		for _, e := range sh.items {
			if now.After(e.expiresAt) {
				expired = append(expired, e)
			}
		}
		for _, e := range expired {
			sh.removeLocked(e)
		}
		sh.mu.Unlock()
	}
}

func (sh *timeShard) removeLocked(e *timeEntry) {
	if sh.maxSize > 0 && e.elem != nil {
		sh.lru.Remove(e.elem)
	}
	delete(sh.items, e.key)
}

// evictLRULocked drops the least-recently-used entry when the shard is at
// its entry cap.
func (sh *timeShard) evictLRULocked() {
	back := sh.lru.Back()
	if back == nil {
		return
	}
	victim := back.Value.(*timeEntry)
	sh.removeLocked(victim)
}

var _ Store = (*TimeBoundStore)(nil)
