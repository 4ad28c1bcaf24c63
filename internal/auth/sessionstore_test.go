package auth

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlabs/carbon/internal/apperr"
)

func newTestSessions(t *testing.T, ttl time.Duration) *SessionStore {
	t.Helper()
	s := NewSessionStore(ttl, time.Minute)
	t.Cleanup(s.Close)
	return s
}

func TestCreateGeneratesHexToken(t *testing.T) {
	s := newTestSessions(t, time.Hour)

	sess, err := s.Create("alice", 0, "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, sess.Token, 64, "32 random bytes hex-encode to 64 chars")
	_, err = hex.DecodeString(sess.Token)
	assert.NoError(t, err)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, "10.0.0.1", sess.ClientIP)
}

func TestGetTouchesAndReturnsUser(t *testing.T) {
	s := newTestSessions(t, time.Hour)

	sess, err := s.Create("alice", 0, "")
	require.NoError(t, err)

	before := sess.LastAccessed
	time.Sleep(5 * time.Millisecond)

	u, err := s.Get(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, sess.LastAccessed.After(before), "get must touch last_accessed")
}

func TestGetUnknownToken(t *testing.T) {
	s := newTestSessions(t, time.Hour)
	_, err := s.Get("deadbeef")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExpiredSessionIsInvalidatedOnGet(t *testing.T) {
	s := newTestSessions(t, 20*time.Millisecond)

	sess, err := s.Create("alice", 0, "")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = s.Get(sess.Token)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// The lazy invalidation also pruned the secondary index.
	assert.Nil(t, s.GetExistingFor("alice"))
}

func TestDeletePrunesBothIndices(t *testing.T) {
	s := newTestSessions(t, time.Hour)

	sess, err := s.Create("alice", 0, "")
	require.NoError(t, err)

	assert.True(t, s.Delete(sess.Token))
	assert.False(t, s.Delete(sess.Token), "second delete returns false")

	_, err = s.Get(sess.Token)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Nil(t, s.GetExistingFor("alice"))
}

func TestGetOrCreateForReusesFreshest(t *testing.T) {
	s := newTestSessions(t, time.Hour)

	first, err := s.Create("alice", 0, "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.Create("alice", 0, "")
	require.NoError(t, err)

	got, err := s.GetOrCreateFor("alice", 0, "")
	require.NoError(t, err)
	assert.Equal(t, second.Token, got.Token, "the most recently accessed session wins")
	assert.NotEqual(t, first.Token, got.Token)
}

func TestGetOrCreateForCreatesWhenNoneLive(t *testing.T) {
	s := newTestSessions(t, time.Hour)

	got, err := s.GetOrCreateFor("bob", 0, "")
	require.NoError(t, err)
	assert.NotEmpty(t, got.Token)

	again, err := s.GetOrCreateFor("bob", 0, "")
	require.NoError(t, err)
	assert.Equal(t, got.Token, again.Token)
}

func TestGetExistingForNeverCreates(t *testing.T) {
	s := newTestSessions(t, time.Hour)
	assert.Nil(t, s.GetExistingFor("nobody"))
}

func TestDeleteAllFor(t *testing.T) {
	s := newTestSessions(t, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := s.Create("alice", 0, "")
		require.NoError(t, err)
	}
	_, err := s.Create("bob", 0, "")
	require.NoError(t, err)

	assert.Equal(t, 3, s.DeleteAllFor("alice"))
	assert.Nil(t, s.GetExistingFor("alice"))
	assert.NotNil(t, s.GetExistingFor("bob"), "other principals' sessions survive")
}

func TestBackgroundSweepReclaimsExpired(t *testing.T) {
	s := NewSessionStore(20*time.Millisecond, 10*time.Millisecond)
	t.Cleanup(s.Close)

	sess, err := s.Create("alice", 0, "")
	require.NoError(t, err)

	// Without any access, the sweeper must reclaim the session.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.RLock()
		_, live := s.byToken[sess.Token]
		s.mu.RUnlock()
		if !live {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sweeper never reclaimed the expired session")
}

func TestCreateHonorsExplicitTTL(t *testing.T) {
	s := newTestSessions(t, time.Hour)

	sess, err := s.Create("alice", 50, "")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), sess.ExpiresAt, 100*time.Millisecond)
}
