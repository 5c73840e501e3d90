package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DeleteRateLimiter is a token bucket shared by every destructive route.
type DeleteRateLimiter struct {
	mu       sync.Mutex
	capacity int
	tokens   int
	refill   time.Duration
	last     time.Time
	now      func() time.Time
}

// NewDeleteRateLimiter allows bursts of capacity deletes and regains one
// token every refill.
func NewDeleteRateLimiter(capacity int, refill time.Duration) *DeleteRateLimiter {
	return &DeleteRateLimiter{
		capacity: capacity,
		tokens:   capacity,
		refill:   refill,
		last:     time.Now(),
		now:      time.Now,
	}
}

// Allow takes one token. When the bucket is empty it reports how long until
// the next token.
func (l *DeleteRateLimiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if elapsed := now.Sub(l.last); elapsed >= l.refill {
		gained := int(elapsed / l.refill)
		l.tokens = min(l.capacity, l.tokens+gained)
		l.last = l.last.Add(time.Duration(gained) * l.refill)
	}
	if l.tokens > 0 {
		l.tokens--
		return true, 0
	}
	return false, l.refill - now.Sub(l.last)
}

// Middleware rejects requests with 429 while the bucket is empty.
func (l *DeleteRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.Allow()
		if !ok {
			seconds := int(wait.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			slog.Warn("delete rate limited",
				"component", "api",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			WriteProblem(w, r, http.StatusTooManyRequests, "Too many delete requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
