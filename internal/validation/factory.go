// Package validation turns an admin create-cache request into a validated
// domain.CacheConfig, or a field + message error pair a handler can
// surface as a 400. One ordered pipeline, so every caller gets identical
// validation.
package validation

import (
	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/domain"
)

// CreateCacheRequest is the wire shape of a POST /admin/caches body.
type CreateCacheRequest struct {
	Name          string            `json:"name"`
	Eviction      string            `json:"eviction"`
	Policy        string            `json:"policy"`
	MemBytes      int64             `json:"mem_bytes"`
	DiskPath      string            `json:"disk_path"`
	Shards        int               `json:"shards"`
	DefaultTTLMs  int64             `json:"default_ttl_ms"`
	MaxValueBytes int64             `json:"max_value_bytes"`
	Description   string            `json:"description"`
	Tags          map[string]string `json:"tags"`
}

// FromRequest validates req in order: backend enum, policy enum (default
// TinyLFU on empty), backend-specific required fields, mem_bytes range,
// shards bound, name syntax, then TTL fill-in.
func FromRequest(req CreateCacheRequest) (domain.CacheConfig, error) {
	backend, ok := domain.ParseBackend(req.Eviction)
	if !ok {
		return domain.CacheConfig{}, apperr.NewValidationError("eviction", "unknown eviction backend: "+req.Eviction)
	}

	policy, ok := domain.ParsePolicy(req.Policy)
	if !ok {
		return domain.CacheConfig{}, apperr.NewValidationError("policy", "unknown eviction policy: "+req.Policy)
	}

	switch backend {
	case domain.BackendSizeBounded, domain.BackendOverflowDisk:
		if req.MemBytes <= 0 {
			return domain.CacheConfig{}, apperr.NewValidationError("mem_bytes", "mem_bytes is required for this backend")
		}
		if backend == domain.BackendOverflowDisk && req.DiskPath == "" {
			return domain.CacheConfig{}, apperr.NewValidationError("disk_path", "disk_path is required for overflow_to_disk")
		}
	}

	if req.MemBytes != 0 && (req.MemBytes < domain.MinMemBytes || req.MemBytes > domain.MaxMemBytes) {
		return domain.CacheConfig{}, apperr.NewValidationError("mem_bytes", "mem_bytes must be between 1 MiB and 1 TiB")
	}

	shards := req.Shards
	if shards == 0 {
		shards = domain.DefaultShards
	}
	if shards < 1 || shards > domain.MaxShards {
		return domain.CacheConfig{}, apperr.NewValidationError("shards", "shards must be between 1 and 256")
	}

	if !domain.ValidName(req.Name) {
		return domain.CacheConfig{}, apperr.NewValidationError("name", "name must be non-empty and match [A-Za-z0-9_-]+")
	}

	ttl := req.DefaultTTLMs
	if backend == domain.BackendTimeBound && ttl <= 0 {
		ttl = domain.DefaultTimeBoundTTLMs
	}

	return domain.CacheConfig{
		Name:          req.Name,
		Backend:       backend,
		Policy:        policy,
		MemBytes:      req.MemBytes,
		DiskPath:      req.DiskPath,
		Shards:        shards,
		DefaultTTLMs:  ttl,
		MaxValueBytes: req.MaxValueBytes,
		Description:   req.Description,
		Tags:          req.Tags,
	}, nil
}
