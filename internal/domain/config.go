// Package domain holds Carbon's durable configuration schema: CacheConfig,
// the eviction strategy/algorithm enums, and the CacheInfo snapshot returned
// by describe/list. These types are the JSON wire format persisted by
// ConfigStore and returned by the HTTP admin surface.
package domain

import "regexp"

// Backend selects the storage engine backing a cache.
type Backend string

const (
	BackendTimeBound     Backend = "time_bound"
	BackendSizeBounded   Backend = "size_bounded"
	BackendOverflowDisk  Backend = "overflow_to_disk"
)

// ParseBackend converts a wire string into a Backend, accepting the short
// aliases used by the HTTP admin surface ("ttl", "size", "disk") alongside
// the canonical names.
func ParseBackend(s string) (Backend, bool) {
	switch s {
	case string(BackendTimeBound), "ttl":
		return BackendTimeBound, true
	case string(BackendSizeBounded), "size":
		return BackendSizeBounded, true
	case string(BackendOverflowDisk), "disk":
		return BackendOverflowDisk, true
	default:
		return "", false
	}
}

// Policy selects the eviction/admission algorithm for a SizeBounded cache.
type Policy string

const (
	PolicyLru         Policy = "lru"
	PolicyTinyLfu     Policy = "tinylfu"
	PolicySieve       Policy = "sieve"
	PolicyUnspecified Policy = ""
)

// ParsePolicy converts a wire string into a Policy. An empty string
// defaults to TinyLFU.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case string(PolicyUnspecified):
		return PolicyTinyLfu, true
	case string(PolicyLru):
		return PolicyLru, true
	case string(PolicyTinyLfu):
		return PolicyTinyLfu, true
	case string(PolicySieve):
		return PolicySieve, true
	default:
		return "", false
	}
}

const (
	// MinMemBytes is the smallest mem_bytes budget accepted (1 MiB).
	MinMemBytes = 1 << 20
	// MaxMemBytes is the largest mem_bytes budget accepted (1 TiB).
	MaxMemBytes = 1 << 40
	// MaxShards is the largest shard count accepted.
	MaxShards = 256
	// DefaultShards is used when CacheConfig.Shards is unset.
	DefaultShards = 16
	// DefaultTimeBoundTTLMs is the default TTL for TimeBound caches (30 min).
	DefaultTimeBoundTTLMs = 30 * 60 * 1000
)

// nameRE restricts cache names to [A-Za-z0-9_-]+.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether name is a legal cache name.
func ValidName(name string) bool {
	return name != "" && nameRE.MatchString(name)
}

// CacheConfig is the durable configuration for one named cache. It is the
// JSON payload persisted by ConfigStore and returned (nested in CacheInfo)
// by the admin HTTP surface.
type CacheConfig struct {
	Name          string            `json:"name"`
	Backend       Backend           `json:"backend"`
	Policy        Policy            `json:"policy,omitempty"`
	MemBytes      int64             `json:"mem_bytes,omitempty"`
	DiskPath      string            `json:"disk_path,omitempty"`
	Shards        int               `json:"shards,omitempty"`
	DefaultTTLMs  int64             `json:"default_ttl_ms,omitempty"`
	MaxValueBytes int64             `json:"max_value_bytes,omitempty"`
	Description   string            `json:"description,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// CacheInfo is the public snapshot of a cache's configuration plus runtime
// size estimates, returned by describe_cache/list_caches.
type CacheInfo struct {
	Config       CacheConfig `json:"config"`
	KeysEstimate int64       `json:"keys_estimate"`
	SizeEstimate int64       `json:"size_estimate"`
}
