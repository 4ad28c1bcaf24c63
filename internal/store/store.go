// Package store implements Carbon's pluggable storage backends behind one
// uniform Store contract: SizeBoundedStore (weight-bounded, sharded,
// TinyLFU/LRU/SIEVE admission) and TimeBoundStore (TTL-bounded, sharded,
// lazy+eager reap).
package store

import (
	"context"

	"github.com/carbonlabs/carbon/internal/apperr"
)

// PutResponse is returned by Store.Put. Created is true whenever the value
// was written, whether the key was new or replaced: the name refers to
// cache-entry creation, not set-vs-update; the data plane distinguishes
// those via a prior Get. Created is false (with a Message) when an
// admission policy declined the write and nothing changed, as
// SizeBoundedStore's TinyLFU does.
type PutResponse struct {
	Created bool
	Message string
}

// GetResponse is returned by Store.Get.
type GetResponse struct {
	Found bool
	Value []byte
	// TTLMsRemaining is the time left before the entry expires, for
	// backends that track an expiry (TimeBoundStore). Nil when the
	// backend has no notion of per-entry expiry (SizeBoundedStore).
	TTLMsRemaining *int64
}

// DeleteResponse is returned by Store.Delete.
type DeleteResponse struct {
	Deleted bool
}

// Store is the uniform contract every backend implements. Implementations
// must be safe for concurrent use by many callers; callers must not assume
// strict linearization across keys.
type Store interface {
	// Put inserts or replaces key's value. ttlMs, if non-nil, is a
	// per-entry TTL hint; current backends coalesce it to the cache
	// default.
	Put(ctx context.Context, key, value []byte, ttlMs *int64) (PutResponse, error)
	// Get returns the value for key. It returns apperr.ErrNotFound only when the key is absent or expired — never for other failures.
	Get(ctx context.Context, key []byte) (GetResponse, error)
	// Delete removes key. Deleted is true iff the key was present.
	Delete(ctx context.Context, key []byte) (DeleteResponse, error)
	// Len estimates the number of live entries, for CacheInfo.KeysEstimate.
	Len() int64
	// SizeBytes estimates aggregate weight, for CacheInfo.SizeEstimate.
	SizeBytes() int64
	// Close stops any background maintenance goroutines the store owns.
	Close()
}

// notFound is a small helper so backends share one not-found return.
func notFound() error {
	return apperr.ErrNotFound
}
