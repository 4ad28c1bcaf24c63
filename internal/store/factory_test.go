package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlabs/carbon/internal/domain"
)

func TestFactoryBuildsBackends(t *testing.T) {
	cases := []struct {
		name    string
		backend domain.Backend
		want    any
	}{
		{"time bound", domain.BackendTimeBound, (*TimeBoundStore)(nil)},
		{"size bounded", domain.BackendSizeBounded, (*SizeBoundedStore)(nil)},
		// OverflowToDisk falls back to the size-bounded engine; disk_path
		// is reserved.
		{"overflow to disk", domain.BackendOverflowDisk, (*SizeBoundedStore)(nil)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(domain.CacheConfig{
				Name:     "c",
				Backend:  tc.backend,
				MemBytes: 1 << 20,
				DiskPath: "/tmp/spill",
			})
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tc.want, s)
		})
	}
}

func TestFactoryRejectsUnknownBackend(t *testing.T) {
	_, err := New(domain.CacheConfig{Name: "c", Backend: "punch_cards"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}
