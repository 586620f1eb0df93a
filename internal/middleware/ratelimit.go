package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RealIP returns the client address, preferring the first X-Forwarded-For
// hop when a local reverse proxy sits in front of the server.
func RealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type window struct {
	count   int
	resetAt time.Time
}

// WriteLimiter caps how many mutating requests one client may send per
// window.
type WriteLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*window
	now     func() time.Time
}

func NewWriteLimiter(limit int, per time.Duration) *WriteLimiter {
	return &WriteLimiter{
		limit:   limit,
		window:  per,
		clients: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow reports whether key may issue another write in the current window.
func (l *WriteLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[key]
	if !ok || !now.Before(w.resetAt) {
		l.clients[key] = &window{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	w.count++
	return w.count <= l.limit
}

// Prune forgets clients whose window has passed.
func (l *WriteLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for key, w := range l.clients {
		if !now.Before(w.resetAt) {
			delete(l.clients, key)
			n++
		}
	}
	return n
}

// LimitWrites rejects POST, PUT, PATCH and DELETE requests over the limit
// with 429. Reads always pass.
func LimitWrites(l *WriteLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
			default:
				if !l.Allow(RealIP(r)) {
					w.Header().Set("Retry-After", "1")
					http.Error(w, "too many writes", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
