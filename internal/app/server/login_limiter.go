package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	loginAttemptsPerMinute = 5
	loginLimiterMaxAge     = 30 * time.Minute
)

// loginLimiter throttles password attempts per client address.
type loginLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	rate       rate.Limit
	burst      int
}

func newLoginLimiter(perMinute int) *loginLimiter {
	return &loginLimiter{
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		rate:       rate.Limit(float64(perMinute) / 60.0),
		burst:      max(1, perMinute),
	}
}

func (l *loginLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictLocked(time.Now().Add(-loginLimiterMaxAge))

	limiter, exists := l.limiters[client]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[client] = limiter
	}
	l.lastAccess[client] = time.Now()
	return limiter.Allow()
}

func (l *loginLimiter) evictLocked(cutoff time.Time) {
	for client, last := range l.lastAccess {
		if last.Before(cutoff) {
			delete(l.limiters, client)
			delete(l.lastAccess, client)
		}
	}
}

func (l *loginLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientAddress(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, "Too many login attempts", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
