package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AnshRaj112/rehab-backend/pkg/clientip"
	"github.com/stretchr/testify/assert"
)

type countingWindow struct {
	counts map[string]int64
	err    error
	keys   []string
}

func (c *countingWindow) Hit(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.keys = append(c.keys, key)
	if c.err != nil {
		return 0, c.err
	}
	c.counts[key]++
	return c.counts[key], nil
}

func TestWindowRateLimit(t *testing.T) {
	counter := &countingWindow{counts: map[string]int64{}}
	h := WindowRateLimit(counter, clientip.Resolver{}, "reset", 2, 15*time.Minute)(okHandler)

	call := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/password/forgot", nil)
		r.RemoteAddr = "192.0.2.10:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	first := call()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, call().Code)

	blocked := call()
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "900", blocked.Header().Get("Retry-After"))
	assert.Equal(t, "ratelimit:reset:192.0.2.10", counter.keys[0])
}

func TestWindowRateLimitFailsOpen(t *testing.T) {
	counter := &countingWindow{err: assert.AnError}
	h := WindowRateLimit(counter, clientip.Resolver{}, "reset", 1, time.Minute)(okHandler)

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}
