// Package middleware contains HTTP middleware for the controller API.
package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"testplane/pkg/api"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client address.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	limiters sync.Map // client -> *cachedLimiter
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithTTL sets how long an idle client bucket is kept.
func WithTTL(ttl time.Duration) Option {
	return func(rl *RateLimiter) {
		if ttl > 0 {
			rl.ttl = ttl
		}
	}
}

// NewRateLimiter allows rps requests per second per client with the given
// burst. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int, opts ...Option) *RateLimiter {
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	rl := &RateLimiter{limit: rate.Limit(rps), burst: burst, ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// rps=0 means unlimited
			if rl.limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.getOrCreate(clientKey(r))
			if !limiter.Allow() {
				retry := time.Duration(float64(time.Second) / float64(rl.limit))
				secs := int(retry.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(api.ErrorResponse{
					Error: "Too Many Requests",
					Code:  "429",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos of the latest request
}

func (c *cachedLimiter) touch(now time.Time) { c.lastSeen.Store(now.UnixNano()) }

func (c *cachedLimiter) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastSeen.Load()))
}

// getOrCreate returns the client's bucket. A bucket lives until the client
// has been idle for the TTL, so an active client never gets a fresh burst.
func (rl *RateLimiter) getOrCreate(key string) *rate.Limiter {
	now := time.Now()
	if v, ok := rl.limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		cached.touch(now)
		return cached.limiter
	}

	fresh := &cachedLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	fresh.touch(now)
	v, _ := rl.limiters.LoadOrStore(key, fresh)
	cached := v.(*cachedLimiter)
	cached.touch(now)
	return cached.limiter
}

// Sweep drops the buckets of clients idle for longer than the TTL and
// returns how many it dropped.
func (rl *RateLimiter) Sweep(now time.Time) int {
	dropped := 0
	rl.limiters.Range(func(key, v any) bool {
		if v.(*cachedLimiter).idleSince(now) > rl.ttl && rl.limiters.CompareAndDelete(key, v) {
			dropped++
		}
		return true
	})
	return dropped
}

// Run sweeps idle buckets once per TTL until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Sweep(now)
		}
	}
}

func (rl *RateLimiter) size() int {
	n := 0
	rl.limiters.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
