package app

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// authLimiter throttles the credential endpoints per client IP so password
// guessing stays slow. Entries idle for an hour are pruned.
type authLimiter struct {
	mu       sync.Mutex
	clients  map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	lastSeen time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newAuthLimiter(rps rate.Limit, burst int) *authLimiter {
	l := &authLimiter{
		clients:  make(map[string]*limiterEntry),
		rps:      rps,
		burst:    burst,
		lastSeen: time.Hour,
	}
	go l.prune()
	return l
}

func (l *authLimiter) allow(r *http.Request) bool {
	ip := clientIP(r)

	l.mu.Lock()
	entry, ok := l.clients[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

func (l *authLimiter) prune() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-l.lastSeen)
		l.mu.Lock()
		for ip, entry := range l.clients {
			if entry.lastSeen.Before(cutoff) {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
