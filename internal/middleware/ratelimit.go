package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ndmitry/grabit/internal/util"
)

const maxTrackedClients = 100000

// Limiter is a sliding-window per-IP rate limiter. Entries for idle
// clients are swept by a background goroutine started at construction.
type Limiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
}

func NewLimiter(max int, window time.Duration) *Limiter {
	l := &Limiter{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
	}
	go l.sweep()
	return l
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := util.GetClientIP(r)
		allowed, remaining, resetIn := l.check(ip)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", l.max))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetIn))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(429)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   "Too many requests. Please slow down.",
				"resetIn": resetIn,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) check(ip string) (allowed bool, remaining int, resetIn int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.window)

	requests := l.hits[ip]
	filtered := requests[:0]
	for _, t := range requests {
		if t.After(windowStart) {
			filtered = append(filtered, t)
		}
	}

	if len(filtered) >= l.max {
		resetSec := int(filtered[0].Add(l.window).Sub(now).Seconds()) + 1
		l.hits[ip] = filtered
		return false, 0, resetSec
	}

	if len(l.hits) >= maxTrackedClients {
		l.hits[ip] = filtered
		return false, 0, 60
	}

	filtered = append(filtered, now)
	l.hits[ip] = filtered
	return true, l.max - len(filtered), 0
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		windowStart := time.Now().Add(-l.window)
		for ip, requests := range l.hits {
			filtered := requests[:0]
			for _, t := range requests {
				if t.After(windowStart) {
					filtered = append(filtered, t)
				}
			}
			if len(filtered) == 0 {
				delete(l.hits, ip)
			} else {
				l.hits[ip] = filtered
			}
		}
		l.mu.Unlock()
	}
}
