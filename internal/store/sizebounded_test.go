package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/domain"
)

func sizeCfg(memBytes int64, shards int, policy domain.Policy) domain.CacheConfig {
	return domain.CacheConfig{
		Name:     "test",
		Backend:  domain.BackendSizeBounded,
		Policy:   policy,
		MemBytes: memBytes,
		Shards:   shards,
	}
}

func TestSizeBoundedPutGetDeleteLaw(t *testing.T) {
	ctx := context.Background()
	s := NewSizeBoundedStore(sizeCfg(1<<20, 4, domain.PolicyLru))
	defer s.Close()

	_, err := s.Put(ctx, []byte("k"), []byte("v"), nil)
	require.NoError(t, err)

	got, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, []byte("v"), got.Value)

	del, err := s.Delete(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, del.Deleted)

	_, err = s.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	del, err = s.Delete(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, del.Deleted, "second delete of the same key must report deleted=false")
}

func TestSizeBoundedNeverExceedsBudget(t *testing.T) {
	ctx := context.Background()
	const budget = 1024
	s := NewSizeBoundedStore(sizeCfg(budget, 4, domain.PolicyLru))
	defer s.Close()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("key-%d", rng.Intn(200)))
		val := make([]byte, rng.Intn(60))
		if _, err := s.Put(ctx, key, val, nil); err != nil {
			// "value too large" is the only legal failure here.
			require.ErrorIs(t, err, apperr.ErrInternal)
		}
		assert.LessOrEqual(t, s.SizeBytes(), int64(budget))
	}
}

func TestSizeBoundedValueTooLarge(t *testing.T) {
	ctx := context.Background()
	s := NewSizeBoundedStore(sizeCfg(64, 1, domain.PolicyLru))
	defer s.Close()

	_, err := s.Put(ctx, []byte("k"), make([]byte, 128), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInternal)
	assert.Contains(t, err.Error(), "value too large")
}

func TestSizeBoundedLRUEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	// Budget fits exactly two 2-byte entries; one shard so eviction order
	// is deterministic.
	s := NewSizeBoundedStore(sizeCfg(4, 1, domain.PolicyLru))
	defer s.Close()

	_, err := s.Put(ctx, []byte("a"), []byte("1"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, []byte("b"), []byte("2"), nil)
	require.NoError(t, err)

	// Touch "a" so "b" becomes the LRU victim.
	_, err = s.Get(ctx, []byte("a"))
	require.NoError(t, err)

	_, err = s.Put(ctx, []byte("c"), []byte("3"), nil)
	require.NoError(t, err)

	_, err = s.Get(ctx, []byte("b"))
	assert.ErrorIs(t, err, apperr.ErrNotFound, "least-recently-used entry should be evicted")
	got, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.True(t, got.Found)
	got, err = s.Get(ctx, []byte("c"))
	require.NoError(t, err)
	assert.True(t, got.Found)
}

func TestSizeBoundedSieveEvictsUnvisited(t *testing.T) {
	ctx := context.Background()
	s := NewSizeBoundedStore(sizeCfg(4, 1, domain.PolicySieve))
	defer s.Close()

	_, err := s.Put(ctx, []byte("a"), []byte("1"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, []byte("b"), []byte("2"), nil)
	require.NoError(t, err)

	// Mark "a" visited; the hand should clear it and evict the first
	// unvisited entry it meets, which is "b".
	_, err = s.Get(ctx, []byte("a"))
	require.NoError(t, err)

	_, err = s.Put(ctx, []byte("c"), []byte("3"), nil)
	require.NoError(t, err)

	_, err = s.Get(ctx, []byte("b"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	got, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.True(t, got.Found)
}

func TestSizeBoundedTinyLFUAdmission(t *testing.T) {
	ctx := context.Background()
	s := NewSizeBoundedStore(sizeCfg(4, 1, domain.PolicyTinyLfu))
	defer s.Close()

	_, err := s.Put(ctx, []byte("a"), []byte("1"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, []byte("b"), []byte("2"), nil)
	require.NoError(t, err)

	// Build frequency for "a" so it is not the victim.
	for i := 0; i < 3; i++ {
		_, err = s.Get(ctx, []byte("a"))
		require.NoError(t, err)
	}

	// A cold key is rejected: its estimated frequency (0) is below the
	// victim's.
	resp, err := s.Put(ctx, []byte("c"), []byte("3"), nil)
	require.NoError(t, err)
	assert.False(t, resp.Created, "cold key should be rejected by the admission filter")

	got, err := s.Get(ctx, []byte("b"))
	require.NoError(t, err)
	assert.True(t, got.Found, "rejected put must not evict the victim")

	// The rejected attempt counted as an access; retrying until the
	// newcomer's frequency catches the victim's must eventually admit it.
	admitted := false
	for i := 0; i < 20 && !admitted; i++ {
		resp, err = s.Put(ctx, []byte("c"), []byte("3"), nil)
		require.NoError(t, err)
		admitted = resp.Created
	}
	assert.True(t, admitted, "a repeatedly requested key should eventually pass admission")
}

func TestSizeBoundedUpdateInPlace(t *testing.T) {
	ctx := context.Background()
	s := NewSizeBoundedStore(sizeCfg(16, 1, domain.PolicyLru))
	defer s.Close()

	_, err := s.Put(ctx, []byte("k"), []byte("old"), nil)
	require.NoError(t, err)
	before := s.SizeBytes()

	_, err = s.Put(ctx, []byte("k"), []byte("newer"), nil)
	require.NoError(t, err)

	got, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("newer"), got.Value)
	assert.Equal(t, int64(1), s.Len())
	assert.Equal(t, before+2, s.SizeBytes(), "weight accounting should track the value growth")
}

func TestSizeBoundedHonorsShardCount(t *testing.T) {
	s := NewSizeBoundedStore(sizeCfg(1<<20, 8, domain.PolicyLru))
	defer s.Close()
	assert.Equal(t, 8, s.sizeShardCount())

	// Unset shard count falls back to the default.
	s2 := NewSizeBoundedStore(sizeCfg(1<<20, 0, domain.PolicyLru))
	defer s2.Close()
	assert.Equal(t, domain.DefaultShards, s2.sizeShardCount())
}

func TestSizeBoundedConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewSizeBoundedStore(sizeCfg(1<<20, 16, domain.PolicyLru))
	defer s.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := []byte(fmt.Sprintf("g%d-k%d", g, i%50))
				if _, err := s.Put(ctx, key, []byte("v"), nil); err != nil {
					t.Errorf("put: %v", err)
					return
				}
				if _, err := s.Get(ctx, key); err != nil && !errors.Is(err, apperr.ErrNotFound) {
					t.Errorf("get: %v", err)
					return
				}
				if i%10 == 0 {
					if _, err := s.Delete(ctx, key); err != nil {
						t.Errorf("delete: %v", err)
						return
					}
				}
			}
		}(g)
	}
	wg.Wait()
}
