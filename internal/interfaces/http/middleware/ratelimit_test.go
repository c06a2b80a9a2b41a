package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/auth/token"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

func TestTokenBucketLimiter_BurstThenRefuse(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 2, time.Minute)

	ok, info := l.Allow("ip:1")
	assert.True(t, ok)
	assert.Equal(t, 1, info.Remaining)
	ok, _ = l.Allow("ip:1")
	assert.True(t, ok)
	ok, info = l.Allow("ip:1")
	assert.False(t, ok)
	assert.Zero(t, info.Remaining)

	ok, _ = l.Allow("ip:2")
	assert.True(t, ok, "buckets are per key")
	assert.Equal(t, 2, l.BucketCount())
}

func TestTokenBucketLimiter_Refills(t *testing.T) {
	l := NewTokenBucketLimiter(1000, 1, time.Minute)
	ok, _ := l.Allow("k")
	require.True(t, ok)
	time.Sleep(5 * time.Millisecond)
	ok, _ = l.Allow("k")
	assert.True(t, ok)
}

func TestRateLimit_Middleware(t *testing.T) {
	h := RateLimit(NewTokenBucketLimiter(0.001, 1, time.Minute), DefaultRateLimitConfig())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions/predict", nil)
	req = req.WithContext(token.WithClaims(req.Context(), &token.TokenClaims{Subject: "u1"}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	var env common.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, errors.CodeRateLimit.String(), env.Code)

	// Another caller from the same address has its own budget.
	other := httptest.NewRequest(http.MethodPost, "/api/v1/predictions/predict", nil)
	other = other.WithContext(token.WithClaims(other.Context(), &token.TokenClaims{Subject: "u2"}))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCallerKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	assert.Equal(t, "ip:10.0.0.1:5000", CallerKey(req))

	req = req.WithContext(token.WithClaims(req.Context(), &token.TokenClaims{Subject: "u1"}))
	assert.Equal(t, "user:u1", CallerKey(req))
}
