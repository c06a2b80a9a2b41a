package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/auth/token"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

// RateLimiter decides whether the caller identified by key may proceed.
type RateLimiter interface {
	Allow(key string) (bool, RateLimitInfo)
}

// RateLimitInfo contains current rate limit state for a given key.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// KeyFunc extracts the limit key; nil keys by user, then client address.
	KeyFunc func(r *http.Request) string
	// IdleTTL evicts buckets that have not been touched for this long.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the default per-caller budget.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		KeyFunc:           CallerKey,
		IdleTTL:           5 * time.Minute,
	}
}

// CallerKey keys authenticated requests by user and the rest by address.
// It must run after the auth middleware to see the user.
func CallerKey(r *http.Request) string {
	if uid, ok := token.UserIDFromContext(r.Context()); ok && uid != "" {
		return "user:" + uid
	}
	return "ip:" + r.RemoteAddr
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter implements RateLimiter with one token bucket per key.
// Buckets live in an expiring cache so idle callers are forgotten.
type TokenBucketLimiter struct {
	rate      float64
	burstSize int
	buckets   *cache.Cache
}

// NewTokenBucketLimiter creates a limiter refilling rate tokens per second
// up to burstSize.
func NewTokenBucketLimiter(rate float64, burstSize int, idleTTL time.Duration) *TokenBucketLimiter {
	if idleTTL <= 0 {
		idleTTL = 5 * time.Minute
	}
	return &TokenBucketLimiter{
		rate:      rate,
		burstSize: burstSize,
		buckets:   cache.New(idleTTL, idleTTL*2),
	}
}

func (l *TokenBucketLimiter) bucket(key string, now time.Time) *tokenBucket {
	if v, ok := l.buckets.Get(key); ok {
		return v.(*tokenBucket)
	}
	b := &tokenBucket{tokens: float64(l.burstSize), lastRefill: now}
	if err := l.buckets.Add(key, b, cache.DefaultExpiration); err != nil {
		// Lost the race; use the winner's bucket.
		if v, ok := l.buckets.Get(key); ok {
			return v.(*tokenBucket)
		}
	}
	return b
}

// Allow takes a token from key's bucket if one is available.
func (l *TokenBucketLimiter) Allow(key string) (bool, RateLimitInfo) {
	now := time.Now()
	b := l.bucket(key, now)
	// Touch the entry so only idle buckets expire.
	defer l.buckets.Set(key, b, cache.DefaultExpiration)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastRefill).Seconds() * l.rate
	if b.tokens > float64(l.burstSize) {
		b.tokens = float64(l.burstSize)
	}
	b.lastRefill = now

	info := RateLimitInfo{
		Limit:   l.burstSize,
		ResetAt: now.Add(time.Duration(float64(time.Second) / l.rate)),
	}
	if b.tokens >= 1.0 {
		b.tokens--
		info.Remaining = int(b.tokens)
		return true, info
	}
	return false, info
}

// BucketCount returns the number of tracked callers.
func (l *TokenBucketLimiter) BucketCount() int {
	return l.buckets.ItemCount()
}

// RateLimit returns middleware that enforces limiter and answers 429 with
// Retry-After once a caller's budget is spent.
func RateLimit(limiter RateLimiter, config RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = CallerKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, info := limiter.Allow(keyFunc(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !allowed {
				retryAfter := int(time.Until(info.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(common.NewErrorResponse(
					errors.CodeRateLimit.String(), "Request was throttled. Please retry later."))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
