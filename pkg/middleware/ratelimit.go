package middleware

import (
	"encoding/base64"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// evictEvery is how many bucket creations pass between stale-bucket sweeps.
const evictEvery = 4096

// staleAfter is how long a bucket may sit idle before a sweep reclaims it.
const staleAfter = 10 * time.Minute

// TokenBucket is a per-key token bucket limiter for the HTTP surface,
// distinct from internal/auth's LoginLimiter, which only guards the
// password-verification slow path. Buckets refill lazily on access with
// atomic compare-and-swap, so Allow takes no locks and no background
// goroutine runs; stale buckets are swept inline as new keys appear.
type TokenBucket struct {
	refillRate float64
	burst      int64
	buckets    sync.Map // string -> *bucket
	creations  int64
}

type bucket struct {
	tokens     int64 // atomic
	lastRefill int64 // atomic, unix nanos; updated on successful consume
	burst      int64
	refillRate float64
}

// NewTokenBucket builds a limiter granting refillRate tokens per second
// per key, with the given burst capacity.
func NewTokenBucket(refillRate float64, burst int64) *TokenBucket {
	if refillRate <= 0 || burst <= 0 {
		panic("middleware: token bucket needs a positive rate and burst")
	}
	return &TokenBucket{refillRate: refillRate, burst: burst}
}

// Allow reports whether one request for key may proceed now.
func (tb *TokenBucket) Allow(key string) bool {
	return tb.AllowN(key, 1)
}

// AllowN reports whether n tokens may be consumed for key, for operations
// with variable cost.
func (tb *TokenBucket) AllowN(key string, n int) bool {
	if key == "" || n <= 0 {
		return false
	}
	return tb.bucketFor(key).tryConsume(int64(n))
}

func (tb *TokenBucket) bucketFor(key string) *bucket {
	if b, ok := tb.buckets.Load(key); ok {
		return b.(*bucket)
	}
	b, loaded := tb.buckets.LoadOrStore(key, &bucket{
		tokens:     tb.burst,
		lastRefill: time.Now().UnixNano(),
		burst:      tb.burst,
		refillRate: tb.refillRate,
	})
	if !loaded && atomic.AddInt64(&tb.creations, 1)%evictEvery == 0 {
		tb.EvictStaleKeys(staleAfter)
	}
	return b.(*bucket)
}

// EvictStaleKeys drops buckets idle longer than idle, bounding memory
// across many short-lived clients. Returns the number evicted.
func (tb *TokenBucket) EvictStaleKeys(idle time.Duration) int {
	threshold := time.Now().Add(-idle).UnixNano()
	evicted := 0
	tb.buckets.Range(func(key, value any) bool {
		if atomic.LoadInt64(&value.(*bucket).lastRefill) < threshold {
			tb.buckets.Delete(key)
			evicted++
		}
		return true
	})
	return evicted
}

// tryConsume refills from elapsed time and consumes n tokens in one CAS
// loop. lastRefill advances only on success; the resulting over-refill
// between racing consumers is bounded and accepted.
func (b *bucket) tryConsume(n int64) bool {
	now := time.Now().UnixNano()
	for {
		tokens := atomic.LoadInt64(&b.tokens)
		elapsed := time.Duration(now - atomic.LoadInt64(&b.lastRefill))
		refilled := tokens + int64(b.refillRate*elapsed.Seconds())
		if refilled > b.burst {
			refilled = b.burst
		}
		if refilled < n {
			return false
		}
		if atomic.CompareAndSwapInt64(&b.tokens, tokens, refilled-n) {
			atomic.StoreInt64(&b.lastRefill, now)
			return true
		}
	}
}

// RateLimitMiddleware rejects requests whose key is out of tokens with a
// 429 and a JSON error body. An empty key passes through unlimited.
func RateLimitMiddleware(next http.Handler, limiter *TokenBucket, keyFunc func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := keyFunc(r); key != "" && !limiter.Allow(key) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// KeyByPrincipal keys the bucket on the caller's claimed principal: the
// Basic-Auth username or the Bearer token when the request carries one,
// falling back to the client IP. Authenticated clients behind one NAT get
// independent buckets, and one principal cannot widen its budget by
// rotating source addresses.
func KeyByPrincipal(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if encoded, ok := strings.CutPrefix(authz, "Basic "); ok {
		if raw, err := base64.StdEncoding.DecodeString(encoded); err == nil {
			if username, _, ok := strings.Cut(string(raw), ":"); ok && username != "" {
				return "user:" + username
			}
		}
	}
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok && token != "" {
		return "token:" + token
	}
	return "ip:" + KeyByIP(r)
}

// KeyByIP resolves the client address: the first X-Forwarded-For entry,
// else X-Real-IP, else the peer address without its port.
func KeyByIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
