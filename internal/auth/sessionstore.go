package auth

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/carbonlabs/carbon/internal/apperr"
)

// SessionStore keeps two indices in lock-step: primary token→Session,
// secondary username→set<token>. A background sweeper reclaims expired
// sessions even without access.
type SessionStore struct {
	mu       sync.RWMutex
	byToken  map[string]*Session
	byUser   map[string]map[string]struct{}
	defaultTTL time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSessionStore builds a SessionStore with the given default session
// TTL and starts its background sweeper.
func NewSessionStore(defaultTTL time.Duration, sweepInterval time.Duration) *SessionStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s := &SessionStore{
		byToken:    make(map[string]*Session),
		byUser:     make(map[string]map[string]struct{}),
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop(sweepInterval)
	return s
}

// Close stops the background sweeper.
func (s *SessionStore) Close() {
	close(s.stop)
	s.wg.Wait()
}

// Create generates a new token and installs it under both indices.
func (s *SessionStore) Create(username string, ttlMs int64, clientIP string) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ttl := s.defaultTTL
	if ttlMs > 0 {
		ttl = time.Duration(ttlMs) * time.Millisecond
	}
	now := time.Now()
	sess := &Session{
		Token:        token,
		Username:     username,
		ClientIP:     clientIP,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[token] = sess
	if s.byUser[username] == nil {
		s.byUser[username] = make(map[string]struct{})
	}
	s.byUser[username][token] = struct{}{}
	return sess, nil
}

// Get validates token and returns its session, touching last_accessed.
// Expired sessions are invalidated and reported as apperr.ErrNotFound.
// The externally supplied token is re-checked against the stored one with
// a constant-time comparison.
func (s *SessionStore) Get(token string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byToken[token]
	if !ok || !constantTimeTokenEqual(sess.Token, token) {
		return User{}, apperr.ErrNotFound
	}
	if sess.expired(time.Now()) {
		s.removeLocked(sess)
		return User{}, apperr.ErrNotFound
	}
	sess.LastAccessed = time.Now()
	return User{Username: sess.Username}, nil
}

// Delete removes token, pruning the secondary index too.
func (s *SessionStore) Delete(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byToken[token]
	if !ok {
		return false
	}
	s.removeLocked(sess)
	return true
}

// GetOrCreateFor returns username's freshest live session, lazily pruning
// expired tokens from the secondary index, or creates one if none exist.
func (s *SessionStore) GetOrCreateFor(username string, ttlMs int64, clientIP string) (*Session, error) {
	if sess := s.freshestFor(username); sess != nil {
		return sess, nil
	}
	return s.Create(username, ttlMs, clientIP)
}

// GetExistingFor returns username's freshest live session without
// creating one; AuthGate's fast path.
func (s *SessionStore) GetExistingFor(username string) *Session {
	return s.freshestFor(username)
}

func (s *SessionStore) freshestFor(username string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := s.byUser[username]
	now := time.Now()
	var best *Session
	var stale []*Session
	for tok := range tokens {
		sess, ok := s.byToken[tok]
		if !ok || sess.expired(now) {
			if ok {
				stale = append(stale, sess)
			}
			continue
		}
		if best == nil || sess.LastAccessed.After(best.LastAccessed) {
			best = sess
		}
	}
	for _, sess := range stale {
		s.removeLocked(sess)
	}
	if best != nil {
		best.LastAccessed = now
	}
	return best
}

// DeleteAllFor invalidates every session belonging to username, returning
// the count removed.
func (s *SessionStore) DeleteAllFor(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := s.byUser[username]
	n := 0
	for tok := range tokens {
		if _, ok := s.byToken[tok]; ok {
			delete(s.byToken, tok)
			n++
		}
	}
	delete(s.byUser, username)
	return n
}

// Update rewrites sess's last_accessed timestamp.
func (s *SessionStore) Update(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.byToken[sess.Token]; ok {
		cur.LastAccessed = time.Now()
	}
}

func (s *SessionStore) removeLocked(sess *Session) {
	delete(s.byToken, sess.Token)
	if set, ok := s.byUser[sess.Username]; ok {
		delete(set, sess.Token)
		if len(set) == 0 {
			delete(s.byUser, sess.Username)
		}
	}
}

func (s *SessionStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *SessionStore) sweepExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.byToken {
		if sess.expired(now) {
			s.removeLocked(sess)
		}
	}
}

// constantTimeTokenEqual compares a stored token with an externally
// supplied one in constant time.
func constantTimeTokenEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
