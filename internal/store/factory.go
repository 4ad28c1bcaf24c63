package store

import (
	"fmt"
	"time"

	"github.com/carbonlabs/carbon/internal/domain"
)

// sweepInterval is the TimeBoundStore background reap cadence; not part of
// CacheConfig since it is an implementation cadence, not a user knob.
const sweepInterval = 30 * time.Second

// New builds the Store backend named by cfg.Backend. OverflowToDisk falls
// back to SizeBoundedStore: disk_path is validated and persisted but a real
// spillover tier is not implemented yet.
func New(cfg domain.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case domain.BackendTimeBound:
		return newTimeBoundFromConfig(cfg), nil
	case domain.BackendSizeBounded, domain.BackendOverflowDisk:
		return NewSizeBoundedStore(cfg), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

func newTimeBoundFromConfig(cfg domain.CacheConfig) *TimeBoundStore {
	maxEntries := 0 // TimeBoundStore's cap is optional; CacheConfig does not expose one today.
	return NewTimeBoundStore(cfg, maxEntries, sweepInterval)
}
