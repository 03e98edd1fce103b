// Package gateway is the keeper's public HTTP surface: purchase
// endpoints with the 402 handshake, read-only eigen queries, API-key
// management, lifecycle actions, and operational endpoints.
package gateway

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/httputil"
)

// RouteClass groups endpoints that share one rate-limit window.
type RouteClass string

const (
	ClassPublic   RouteClass = "public"
	ClassPurchase RouteClass = "purchase"
	ClassAgent    RouteClass = "agent"
)

// defaultWindowLimit is the unauthenticated ceiling: 60 requests / 60s.
const (
	defaultWindowLimit = 60
	windowLength       = 60 * time.Second
	sweepInterval      = 5 * time.Minute
)

type window struct {
	count   int
	resetAt time.Time
}

// WindowLimiter is the dedicated per-(ip, route-class) sliding-window
// component: a concurrent map of {count, resetAt} swept every five
// minutes.
type WindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   func() time.Time
	done    chan struct{}
}

// NewWindowLimiter builds a limiter and starts its sweep.
func NewWindowLimiter() *WindowLimiter {
	l := &WindowLimiter{
		windows: make(map[string]*window),
		clock:   time.Now,
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow consumes one request from (key, class)'s window at the given
// limit, returning the remaining budget and whether the request may
// proceed.
func (l *WindowLimiter) Allow(key string, class RouteClass, limit int) (remaining int, ok bool) {
	if limit <= 0 {
		limit = defaultWindowLimit
	}
	mapKey := key + "|" + string(class)
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[mapKey]
	if !exists || now.After(w.resetAt) {
		w = &window{count: 0, resetAt: now.Add(windowLength)}
		l.windows[mapKey] = w
	}
	if w.count >= limit {
		return 0, false
	}
	w.count++
	return limit - w.count, true
}

func (l *WindowLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			now := l.clock()
			l.mu.Lock()
			for k, w := range l.windows {
				if now.After(w.resetAt) {
					delete(l.windows, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop ends the sweep goroutine.
func (l *WindowLimiter) Stop() {
	close(l.done)
}

// Middleware enforces the window for class, keyed by client IP for
// anonymous requests and lifting the limit to the key's own rateLimit for
// authenticated ones. Every response carries X-RateLimit-Limit and
// X-RateLimit-Remaining.
func (l *WindowLimiter) Middleware(class RouteClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := httputil.ClientIP(r)
			if key == "" {
				key = "unknown"
			}
			limit := defaultWindowLimit
			if apiKey := keyFromContext(r.Context()); apiKey != nil {
				key = "key:" + apiKey.Prefix
				if apiKey.RateLimit > 0 {
					limit = apiKey.RateLimit
				}
			}

			remaining, ok := l.Allow(key, class, limit)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				httputil.WriteErrorResponse(w, r, http.StatusTooManyRequests, "SVC_5006", "Rate limit exceeded", map[string]interface{}{
					"limit":  limit,
					"window": windowLength.String(),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
