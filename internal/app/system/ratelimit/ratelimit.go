// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is how long until the window resets, measured on the
	// limiter's own clock.
	RetryAfter time.Duration
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// MemoryLimiter is a single-process fixed-window limiter.
// It is safe for concurrent use.
type MemoryLimiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int           // max requests per window
	duration time.Duration // window duration
	clock    clockwork.Clock
	stop     chan struct{}
	once     sync.Once
}

type window struct {
	count     int
	expiresAt time.Time
}

// NewMemory creates an in-memory limiter allowing limit requests per
// duration for each key. Call Close to stop its sweeper.
func NewMemory(limit int, duration time.Duration, clock clockwork.Clock) *MemoryLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	l := &MemoryLimiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		clock:    clock,
		stop:     make(chan struct{}),
	}
	go l.sweepLoop(duration * 2)
	return l
}

// Allow records one request for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, exists := l.windows[key]
	if !exists || !now.Before(w.expiresAt) {
		w = &window{expiresAt: now.Add(l.duration)}
		l.windows[key] = w
	}

	res := Result{Limit: l.limit, ResetAt: w.expiresAt, RetryAfter: w.expiresAt.Sub(now)}
	if w.count >= l.limit {
		return res, nil
	}
	w.count++
	res.Allowed = true
	res.Remaining = l.limit - w.count
	return res, nil
}

// Reset clears the window for key.
func (l *MemoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Close stops the background sweeper.
func (l *MemoryLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) sweepLoop(every time.Duration) {
	ticker := l.clock.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.Chan():
			l.sweep()
		}
	}
}

// sweep drops expired windows.
func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	for key, w := range l.windows {
		if !now.Before(w.expiresAt) {
			delete(l.windows, key)
		}
	}
}

// ClientIP extracts the client IP from an HTTP request. X-Forwarded-For and
// X-Real-IP are honored only when trustProxy is set, i.e. when the service
// sits behind a proxy that overwrites them; otherwise RemoteAddr is used.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}
