package handler

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/prn-tf/alexander-library/internal/metrics"
)

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	metrics *metrics.Metrics
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter(rps float64, burst int, idleTTL time.Duration, m *metrics.Metrics) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		metrics: m,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if c, ok := rl.clients[key]; ok {
		c.lastSeen = now
		return c.lim
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.clients[key] = &clientLimiter{lim: lim, lastSeen: now}
	return lim
}

// Cleanup forgets clients idle for longer than the idle TTL.
func (rl *RateLimiter) Cleanup() {
	cutoff := time.Now().Add(-rl.idleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, k)
		}
	}
}

// StartJanitor runs Cleanup periodically until ctx is done.
func (rl *RateLimiter) StartJanitor(ctx context.Context) {
	t := time.NewTicker(rl.idleTTL / 2)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				rl.Cleanup()
			}
		}
	}()
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter(clientKey(r)).Allow() {
			rl.metrics.RecordRateLimited()
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate_limited",
				Message: "too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter is the number of whole seconds until one token refills.
func (rl *RateLimiter) retryAfter() int {
	if rl.rps <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(1/float64(rl.rps))))
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
