// Package registry implements the cache registry: the live
// name → (CacheConfig, Store) map every data-plane operation looks up
// first. A sharded map rather than a single mutex, so writers serialize
// only when their names hash to the same one of shardCount shards — the
// same sharding idiom SizeBoundedStore uses.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/configstore"
	"github.com/carbonlabs/carbon/internal/domain"
	"github.com/carbonlabs/carbon/internal/store"
)

const shardCount = 32

type entry struct {
	config domain.CacheConfig
	store  store.Store
}

type regShard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// CreateCacheResponse is returned by Registry.Create.
type CreateCacheResponse struct {
	Created bool
	Message string
}

// DropCacheResponse is returned by Registry.Drop.
type DropCacheResponse struct {
	Dropped bool
}

// Registry is CacheRegistry's live, sharded name→(config, store) map, with
// an optional ConfigStore for durability.
type Registry struct {
	shards []*regShard
	cfg    *configstore.ConfigStore // nil disables persistence
}

// New builds a Registry. cfg may be nil to run purely in-memory.
func New(cfg *configstore.ConfigStore) *Registry {
	shards := make([]*regShard, shardCount)
	for i := range shards {
		shards[i] = &regShard{entries: make(map[string]*entry)}
	}
	return &Registry{shards: shards, cfg: cfg}
}

func (r *Registry) shardFor(name string) *regShard {
	h := xxhash.Sum64String(name)
	return r.shards[h%uint64(len(r.shards))]
}

// Create installs a new cache under cfg.Name built with s. If the name is
// already present, it returns {Created: false} and does not mutate
// anything. If persistence is enabled and the config write fails, the map
// is left untouched.
func (r *Registry) Create(cfg domain.CacheConfig, s store.Store) (CreateCacheResponse, error) {
	sh := r.shardFor(cfg.Name)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.entries[cfg.Name]; exists {
		return CreateCacheResponse{Created: false, Message: "already exists"}, nil
	}

	if r.cfg != nil {
		if err := r.cfg.PutCache(cfg.Name, cfg); err != nil {
			return CreateCacheResponse{}, fmt.Errorf("%w: persist cache config: %v", apperr.ErrStorage, err)
		}
	}

	sh.entries[cfg.Name] = &entry{config: cfg, store: s}
	return CreateCacheResponse{Created: true}, nil
}

// Drop removes name from the registry, deleting its persisted config too.
func (r *Registry) Drop(name string) (DropCacheResponse, error) {
	sh := r.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[name]
	if !ok {
		return DropCacheResponse{Dropped: false}, nil
	}
	delete(sh.entries, name)
	e.store.Close()

	if r.cfg != nil {
		if err := r.cfg.DeleteCache(name); err != nil {
			return DropCacheResponse{}, fmt.Errorf("%w: delete persisted cache config: %v", apperr.ErrStorage, err)
		}
	}
	return DropCacheResponse{Dropped: true}, nil
}

// Describe returns name's CacheInfo, or apperr.ErrCacheNotFound.
func (r *Registry) Describe(name string) (domain.CacheInfo, error) {
	sh := r.shardFor(name)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[name]
	if !ok {
		return domain.CacheInfo{}, apperr.ErrCacheNotFound
	}
	return domain.CacheInfo{
		Config:       e.config,
		KeysEstimate: e.store.Len(),
		SizeEstimate: e.store.SizeBytes(),
	}, nil
}

// List returns a snapshot of every registered cache's CacheInfo.
func (r *Registry) List() []domain.CacheInfo {
	var out []domain.CacheInfo
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			out = append(out, domain.CacheInfo{
				Config:       e.config,
				KeysEstimate: e.store.Len(),
				SizeEstimate: e.store.SizeBytes(),
			})
		}
		sh.mu.RUnlock()
	}
	return out
}

// GetStore returns the Store backing name, for the data plane.
func (r *Registry) GetStore(name string) (store.Store, bool) {
	sh := r.shardFor(name)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[name]
	if !ok {
		return nil, false
	}
	return e.store, true
}

// Rehydrate reads every persisted CacheConfig and builds+installs a Store
// for each, concurrently via errgroup. Configs that fail to deserialize
// are reported via onBadConfig and skipped, never fatal.
func (r *Registry) Rehydrate(ctx context.Context, factory func(domain.CacheConfig) (store.Store, error), onBadConfig func(name string, err error)) error {
	if r.cfg == nil {
		return nil
	}

	type job struct {
		name string
		cfg  domain.CacheConfig
	}
	var jobs []job
	err := r.cfg.IterCaches(func(name string, raw []byte) error {
		var cc domain.CacheConfig
		if err := unmarshalCacheConfig(raw, &cc); err != nil {
			if onBadConfig != nil {
				onBadConfig(name, err)
			}
			return nil
		}
		jobs = append(jobs, job{name: name, cfg: cc})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: iterate persisted caches: %v", apperr.ErrStorage, err)
	}

	g, _ := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			s, err := factory(j.cfg)
			if err != nil {
				if onBadConfig != nil {
					onBadConfig(j.name, err)
				}
				return nil
			}
			sh := r.shardFor(j.name)
			sh.mu.Lock()
			sh.entries[j.name] = &entry{config: j.cfg, store: s}
			sh.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}
