package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"forgehq/loom/pkg/api/types"
	"forgehq/loom/pkg/telemetry/logging"
)

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	// Enabled controls whether the limiter runs at all.
	Enabled bool

	// RequestsPerMinute is the sustained rate each client is allowed.
	// Zero disables the limiter regardless of Enabled.
	RequestsPerMinute int

	// Burst is the bucket capacity: how many requests a client may issue
	// back to back before the sustained rate applies. Zero defaults to
	// the full per-minute rate.
	Burst int
}

// idleEviction is how long an untouched client bucket survives before
// the next request sweeps it away.
const idleEviction = 10 * time.Minute

// tokenBucket meters one client. Tokens refill continuously at the
// configured rate; each request takes one. Monotonic time keeps the
// refill arithmetic immune to wall clock jumps.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate float64 // tokens per second
	lastRefill time.Time
	lastSeen   time.Time
}

func newTokenBucket(capacity int64, refillRate float64) *tokenBucket {
	now := time.Now()
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity, // Start with full bucket
		refillRate: refillRate,
		lastRefill: now,
		lastSeen:   now,
	}
}

// take consumes one token if available. It reports whether the request
// may proceed, the tokens left afterwards, and on rejection how long
// until a token frees up.
func (tb *tokenBucket) take() (ok bool, remaining int64, retryAfter time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	tb.lastSeen = time.Now()

	if tb.tokens >= 1 {
		tb.tokens--
		return true, tb.tokens, 0
	}

	seconds := 1.0 / tb.refillRate
	return false, 0, time.Duration(seconds * float64(time.Second))
}

// idleSince reports how long ago the bucket last saw a request.
func (tb *tokenBucket) idleSince(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastSeen)
}

// refillLocked adds tokens for the time elapsed since the last refill,
// capped at capacity. Caller must hold the lock.
func (tb *tokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int64(elapsed.Seconds() * tb.refillRate)
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

// rateLimiter holds one bucket per client address.
type rateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	capacity int64
	rate     float64 // tokens per second
	limit    int     // advertised per-minute limit
}

func newRateLimiter(config *RateLimitConfig) *rateLimiter {
	capacity := int64(config.Burst)
	if capacity <= 0 {
		capacity = int64(config.RequestsPerMinute)
	}
	return &rateLimiter{
		buckets:  make(map[string]*tokenBucket),
		capacity: capacity,
		rate:     float64(config.RequestsPerMinute) / 60.0,
		limit:    config.RequestsPerMinute,
	}
}

// bucketFor returns the client's bucket, creating it on first sight.
// Buckets idle past the eviction horizon are dropped on the way, so the
// map tracks active clients rather than every address ever seen.
func (rl *rateLimiter) bucketFor(client string) *tokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.buckets[client]
	if !ok {
		now := time.Now()
		for addr, b := range rl.buckets {
			if b.idleSince(now) > idleEviction {
				delete(rl.buckets, addr)
			}
		}

		bucket = newTokenBucket(rl.capacity, rl.rate)
		rl.buckets[client] = bucket
	}
	return bucket
}

// RateLimitMiddleware limits each client to a sustained request rate
// with a configurable burst. Clients are told where they stand through
// X-RateLimit-Limit and X-RateLimit-Remaining; a rejected request gets
// a 429 envelope with a Retry-After header. Clients are keyed by remote
// address, one bucket each.
//
// A nil config, Enabled false, or a zero rate disables the middleware.
//
// Example usage:
//
//	handler = RateLimitMiddleware(&RateLimitConfig{Enabled: true, RequestsPerMinute: 120})(handler)
func RateLimitMiddleware(config *RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if config == nil || !config.Enabled || config.RequestsPerMinute <= 0 {
			return next
		}

		limiter := newRateLimiter(config)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientAddress(r)

			ok, remaining, retryAfter := limiter.bucketFor(client).take()

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

			if !ok {
				writeRateLimited(w, r, client, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientAddress keys a request to a bucket: the host part of the remote
// address, falling back to the raw value when it does not split.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimited rejects the request with the uniform 429 envelope.
func writeRateLimited(w http.ResponseWriter, r *http.Request, client string, retryAfter time.Duration) {
	slog.WarnContext(r.Context(), "request rate limited",
		"request_id", logging.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"client", client,
		"retry_after", retryAfter.String(),
	)

	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))

	errResp := types.NewErrorResponse(types.CodeTooManyRequests,
		"Too many requests: slow down and retry later")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(errResp)
}
