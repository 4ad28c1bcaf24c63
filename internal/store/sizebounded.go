package store

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/domain"
)

// sketchResetPeriod ages (halves) a shard's TinyLFU sketch every N inserts
// so frequency estimates track recency.
const sketchResetPeriod = 10000

// sizeNode is one resident entry. visited is used only by the SIEVE policy.
type sizeNode struct {
	key     string
	value   []byte
	weight  int64
	elem    *list.Element
	visited bool
}

// sizeShard owns an independent budget (mem_bytes / shards) and lock.
// Shards never share state.
type sizeShard struct {
	mu     sync.Mutex
	budget int64
	used   int64
	items  map[string]*sizeNode
	order  *list.List // MRU/newest at Front, victim candidate at Back
	hand   *list.Element
	policy domain.Policy
	sketch *cmSketch
}

// SizeBoundedStore is the weight-bounded admission/eviction cache backend.
// It implements TinyLFU, LRU, and SIEVE eviction, sharded by hash(key) mod
// shards so distinct shards never contend.
type SizeBoundedStore struct {
	shards []*sizeShard
}

// NewSizeBoundedStore builds a store sized at cfg.MemBytes, partitioned
// across cfg.Shards (defaulting per domain.DefaultShards).
func NewSizeBoundedStore(cfg domain.CacheConfig) *SizeBoundedStore {
	n := cfg.Shards
	if n <= 0 {
		n = domain.DefaultShards
	}
	perShard := cfg.MemBytes / int64(n)
	if perShard <= 0 {
		perShard = 1
	}
	policy := cfg.Policy
	if policy == domain.PolicyUnspecified {
		policy = domain.PolicyTinyLfu
	}

	shards := make([]*sizeShard, n)
	for i := range shards {
		sh := &sizeShard{
			budget: perShard,
			items:  make(map[string]*sizeNode),
			order:  list.New(),
			policy: policy,
		}
		if policy == domain.PolicyTinyLfu {
			sh.sketch = newCmSketch(uint64(perShard), sketchResetPeriod)
		}
		shards[i] = sh
	}
	return &SizeBoundedStore{shards: shards}
}

func (s *SizeBoundedStore) shardFor(key []byte) *sizeShard {
	h := xxhash.Sum64(key)
	return s.shards[h%uint64(len(s.shards))]
}

func (s *SizeBoundedStore) Put(_ context.Context, key, value []byte, _ *int64) (PutResponse, error) {
	return s.shardFor(key).put(key, value)
}

func (s *SizeBoundedStore) Get(_ context.Context, key []byte) (GetResponse, error) {
	return s.shardFor(key).get(key)
}

func (s *SizeBoundedStore) Delete(_ context.Context, key []byte) (DeleteResponse, error) {
	return s.shardFor(key).delete(key)
}

func (s *SizeBoundedStore) Len() int64 {
	var n int64
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += int64(len(sh.items))
		sh.mu.Unlock()
	}
	return n
}

func (s *SizeBoundedStore) SizeBytes() int64 {
	var n int64
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += sh.used
		sh.mu.Unlock()
	}
	return n
}

func (s *SizeBoundedStore) Close() {}

func (sh *sizeShard) put(key, value []byte) (PutResponse, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	k := string(key)
	weight := int64(len(key) + len(value))
	if weight > sh.budget {
		return PutResponse{}, fmt.Errorf("%w: value too large", apperr.ErrInternal)
	}

	if existing, ok := sh.items[k]; ok {
		delta := weight - existing.weight
		if delta > 0 {
			for sh.used+delta > sh.budget {
				if !sh.evictOneExcept(existing) {
					return PutResponse{Created: false, Message: "rejected by admission policy"}, nil
				}
			}
		}
		existing.value = value
		existing.weight = weight
		sh.used += delta
		sh.onAccess(existing)
		return PutResponse{Created: true}, nil
	}

	for sh.used+weight > sh.budget {
		if sh.order.Len() == 0 {
			return PutResponse{}, fmt.Errorf("%w: value too large", apperr.ErrInternal)
		}
		if sh.policy == domain.PolicyTinyLfu {
			victim := sh.order.Back().Value.(*sizeNode)
			if sh.sketch.Estimate(key) < sh.sketch.Estimate([]byte(victim.key)) {
				sh.sketch.Increment(key)
				return PutResponse{Created: false, Message: "rejected by admission policy"}, nil
			}
		}
		sh.evictOne()
	}

	n := &sizeNode{key: k, value: value, weight: weight}
	n.elem = sh.order.PushFront(n)
	sh.items[k] = n
	sh.used += weight
	if sh.policy == domain.PolicyTinyLfu {
		sh.sketch.Increment(key)
	}
	if sh.hand == nil {
		sh.hand = sh.order.Back()
	}
	return PutResponse{Created: true}, nil
}

func (sh *sizeShard) get(key []byte) (GetResponse, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	n, ok := sh.items[string(key)]
	if !ok {
		return GetResponse{}, notFound()
	}
	sh.onAccess(n)
	if sh.policy == domain.PolicyTinyLfu {
		sh.sketch.Increment(key)
	}
	return GetResponse{Found: true, Value: n.value}, nil
}

func (sh *sizeShard) delete(key []byte) (DeleteResponse, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	n, ok := sh.items[string(key)]
	if !ok {
		return DeleteResponse{Deleted: false}, nil
	}
	sh.removeNode(n)
	return DeleteResponse{Deleted: true}, nil
}

// onAccess updates recency/visited state. LRU and TinyLFU move the entry to
// the front; SIEVE only sets the visited bit.
func (sh *sizeShard) onAccess(n *sizeNode) {
	switch sh.policy {
	case domain.PolicySieve:
		n.visited = true
	default:
		sh.order.MoveToFront(n.elem)
	}
}

// evictOne removes exactly one entry per the shard's policy, freeing its
// weight from the budget.
func (sh *sizeShard) evictOne() {
	var victim *sizeNode
	switch sh.policy {
	case domain.PolicySieve:
		victim = sh.sieveVictim()
	default: // LRU, TinyLFU
		victim = sh.order.Back().Value.(*sizeNode)
	}
	sh.removeNode(victim)
}

// evictOneExcept evicts one entry other than keep (used when growing an
// existing entry in place). Returns false if no other entry is evictable.
func (sh *sizeShard) evictOneExcept(keep *sizeNode) bool {
	if len(sh.items) <= 1 {
		return false
	}
	var victim *sizeNode
	switch sh.policy {
	case domain.PolicySieve:
		victim = sh.sieveVictim()
		if victim == keep {
			victim = sh.sieveVictim()
		}
	default:
		for e := sh.order.Back(); e != nil; e = e.Prev() {
			cand := e.Value.(*sizeNode)
			if cand != keep {
				victim = cand
				break
			}
		}
	}
	if victim == nil || victim == keep {
		return false
	}
	sh.removeNode(victim)
	return true
}

// sieveVictim sweeps the hand over the insertion-ordered queue, clearing
// visited bits, and returns the first unvisited entry found.
func (sh *sizeShard) sieveVictim() *sizeNode {
	e := sh.hand
	if e == nil {
		e = sh.order.Back()
	}
	for {
		if e == nil {
			e = sh.order.Back()
		}
		n := e.Value.(*sizeNode)
		if !n.visited {
			prev := e.Prev()
			if prev == nil {
				prev = sh.order.Back()
			}
			sh.hand = prev
			return n
		}
		n.visited = false
		e = e.Prev()
	}
}

func (sh *sizeShard) removeNode(n *sizeNode) {
	if sh.hand == n.elem {
		sh.hand = nil // sieveVictim falls back to order.Back() when nil
	}
	sh.order.Remove(n.elem)
	delete(sh.items, n.key)
	sh.used -= n.weight
}

func (s *SizeBoundedStore) sizeShardCount() int { return len(s.shards) }

var _ Store = (*SizeBoundedStore)(nil)
