// Package dataplane routes keyed operations to the right cache backend:
// the one put/get/delete entry point per cache name that every protocol
// front-end (TCP, HTTP) calls through. Concurrent puts for the same key
// coalesce their add-vs-update classification read through
// golang.org/x/sync/singleflight, keyed by "cache\x00key"; the
// classification stays best-effort under concurrency.
package dataplane

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/eventbus"
	"github.com/carbonlabs/carbon/internal/registry"
)

// PutResponse is returned by DataPlane.Put.
type PutResponse struct {
	OK bool
}

// GetResponse is returned by DataPlane.Get.
type GetResponse struct {
	Found          bool
	Value          []byte
	TTLMsRemaining *int64
}

// DeleteResponse is returned by DataPlane.Delete.
type DeleteResponse struct {
	Deleted bool
}

// DataPlane is the single entry point for per-cache key operations.
type DataPlane struct {
	registry *registry.Registry
	bus      *eventbus.Bus
	sf       singleflight.Group
}

// New builds a DataPlane over reg, publishing item-change events to bus.
func New(reg *registry.Registry, bus *eventbus.Bus) *DataPlane {
	return &DataPlane{registry: reg, bus: bus}
}

// Put writes key=value into cache, emitting Added or Updated on success.
// The add/update classification is decided by a pre-read of key, coalesced
// through singleflight per (cache,key) so concurrent puts for the same key
// perform the classification read only once.
func (d *DataPlane) Put(ctx context.Context, cache string, key, value []byte, ttlMs *int64) (PutResponse, error) {
	s, ok := d.registry.GetStore(cache)
	if !ok {
		return PutResponse{}, apperr.ErrCacheNotFound
	}

	sfKey := cache + "\x00" + string(key)
	wasPresent, _, _ := d.sf.Do(sfKey, func() (any, error) {
		_, err := s.Get(ctx, key)
		return err == nil, nil
	})

	resp, err := s.Put(ctx, key, value, ttlMs)
	if err != nil {
		return PutResponse{}, err
	}
	if !resp.Created {
		// Rejected by the store's admission policy: not an error, but
		// nothing changed, so no event is emitted.
		return PutResponse{OK: true}, nil
	}

	kind := eventbus.KindUpdated
	if !wasPresent.(bool) {
		kind = eventbus.KindAdded
	}
	valueSize := int64(len(value))
	d.bus.Publish(eventbus.CacheItemEvent{
		Version:   eventbus.EventVersion1,
		Kind:      kind,
		CacheName: cache,
		Key:       string(key),
		Timestamp: time.Now(),
		ValueSize: &valueSize,
		TTLMs:     ttlMs,
	})
	return PutResponse{OK: true}, nil
}

// Get reads key from cache. No event is emitted.
func (d *DataPlane) Get(ctx context.Context, cache string, key []byte) (GetResponse, error) {
	s, ok := d.registry.GetStore(cache)
	if !ok {
		return GetResponse{}, apperr.ErrCacheNotFound
	}
	r, err := s.Get(ctx, key)
	if err != nil {
		return GetResponse{}, err
	}
	return GetResponse{Found: r.Found, Value: r.Value, TTLMsRemaining: r.TTLMsRemaining}, nil
}

// Delete removes key from cache, emitting Deleted if it was present.
func (d *DataPlane) Delete(ctx context.Context, cache string, key []byte) (DeleteResponse, error) {
	s, ok := d.registry.GetStore(cache)
	if !ok {
		return DeleteResponse{}, apperr.ErrCacheNotFound
	}
	r, err := s.Delete(ctx, key)
	if err != nil {
		return DeleteResponse{}, err
	}
	if r.Deleted {
		d.bus.Publish(eventbus.CacheItemEvent{
			Version:   eventbus.EventVersion1,
			Kind:      eventbus.KindDeleted,
			CacheName: cache,
			Key:       string(key),
			Timestamp: time.Now(),
		})
	}
	return DeleteResponse{Deleted: r.Deleted}, nil
}
