package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles login attempts per client IP, keeping a hostile
// client from burning CPU on repeated Argon2 verifications.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewLoginLimiter builds a limiter allowing rps login attempts per second
// per IP, with the given burst.
func NewLoginLimiter(rps float64, burst int) *LoginLimiter {
	return &LoginLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether clientIP may attempt a login now.
func (l *LoginLimiter) Allow(clientIP string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[clientIP]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[clientIP] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
