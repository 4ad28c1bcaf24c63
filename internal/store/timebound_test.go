package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/domain"
)

func ttlCfg(ttlMs int64) domain.CacheConfig {
	return domain.CacheConfig{
		Name:         "test",
		Backend:      domain.BackendTimeBound,
		DefaultTTLMs: ttlMs,
	}
}

func TestTimeBoundPutGetDeleteLaw(t *testing.T) {
	ctx := context.Background()
	s := NewTimeBoundStore(ttlCfg(60_000), 0, time.Minute)
	defer s.Close()

	_, err := s.Put(ctx, []byte("k"), []byte("v"), nil)
	require.NoError(t, err)

	got, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, []byte("v"), got.Value)
	require.NotNil(t, got.TTLMsRemaining)
	assert.Greater(t, *got.TTLMsRemaining, int64(0))
	assert.LessOrEqual(t, *got.TTLMsRemaining, int64(60_000))

	del, err := s.Delete(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, del.Deleted)

	_, err = s.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	del, err = s.Delete(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, del.Deleted)
}

func TestTimeBoundLazyExpiry(t *testing.T) {
	ctx := context.Background()
	// Long sweep interval: only the lazy reap-on-access path can expire
	// the entry within this test.
	s := NewTimeBoundStore(ttlCfg(50), 0, time.Minute)
	defer s.Close()

	_, err := s.Put(ctx, []byte("k"), []byte("v"), nil)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	_, err = s.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, apperr.ErrNotFound, "expired entry must be invisible to gets")
}

func TestTimeBoundEagerSweep(t *testing.T) {
	ctx := context.Background()
	s := NewTimeBoundStore(ttlCfg(30), 0, 10*time.Millisecond)
	defer s.Close()

	for i := 0; i < 10; i++ {
		_, err := s.Put(ctx, []byte(fmt.Sprintf("k%d", i)), []byte("v"), nil)
		require.NoError(t, err)
	}

	// Wait out the TTL plus a few sweep ticks; the background sweeper must
	// reclaim entries without any access.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.SizeBytes() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, int64(0), s.SizeBytes(), "sweeper should reclaim expired entries without access")
}

func TestTimeBoundDefaultTTLFillIn(t *testing.T) {
	ctx := context.Background()
	// A zero TTL config falls back to the 30-minute default rather than
	// expiring immediately.
	s := NewTimeBoundStore(ttlCfg(0), 0, time.Minute)
	defer s.Close()

	_, err := s.Put(ctx, []byte("k"), []byte("v"), nil)
	require.NoError(t, err)

	got, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, got.Found)
	require.NotNil(t, got.TTLMsRemaining)
	assert.Greater(t, *got.TTLMsRemaining, int64(domain.DefaultTimeBoundTTLMs-5_000))
}

func TestTimeBoundPerEntryTTLCoalescesToDefault(t *testing.T) {
	ctx := context.Background()
	s := NewTimeBoundStore(ttlCfg(60_000), 0, time.Minute)
	defer s.Close()

	short := int64(1)
	_, err := s.Put(ctx, []byte("k"), []byte("v"), &short)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// The per-entry hint is accepted but the entry still lives on the
	// cache default.
	got, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, got.Found)
}

func TestTimeBoundEntryCap(t *testing.T) {
	ctx := context.Background()
	const maxEntries = 16
	s := NewTimeBoundStore(ttlCfg(60_000), maxEntries, time.Minute)
	defer s.Close()

	for i := 0; i < 200; i++ {
		_, err := s.Put(ctx, []byte(fmt.Sprintf("k%d", i)), []byte("v"), nil)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, s.Len(), int64(maxEntries), "entry cap must bound the live set")
}

func TestTimeBoundLenExcludesExpired(t *testing.T) {
	ctx := context.Background()
	s := NewTimeBoundStore(ttlCfg(40), 0, time.Minute)
	defer s.Close()

	_, err := s.Put(ctx, []byte("k"), []byte("v"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Len())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(0), s.Len())
}
