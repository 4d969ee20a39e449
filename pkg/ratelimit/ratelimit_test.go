package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, l RateLimiter, key string, limit Limit, n int) []bool {
	t.Helper()
	out := make([]bool, n)
	for i := range out {
		res, err := l.Allow(context.Background(), key, limit)
		require.NoError(t, err)
		out[i] = res.Allowed
	}
	return out
}

func TestLocalRateLimiter(t *testing.T) {
	l := NewLocalRateLimiter()
	limit := Limit{Rate: 1, Period: time.Hour, Burst: 2}

	assert.Equal(t, []bool{true, true, false}, drain(t, l, "10.0.0.1", limit, 3))
	assert.Equal(t, []bool{true}, drain(t, l, "10.0.0.2", limit, 1), "buckets are per key")

	res, err := l.Allow(context.Background(), "10.0.0.1", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	_, err = l.Allow(context.Background(), "k", Limit{})
	assert.Error(t, err)
}

func TestRedisRateLimiter_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	var l RateLimiter = NewRedisRateLimiter(rdb)
	_, err := l.Allow(context.Background(), "ratelimit:10.0.0.1", PerSecond(10, 10))
	assert.ErrorContains(t, err, "rate limit check failed")
}

func TestPerSecond(t *testing.T) {
	assert.Equal(t, Limit{Rate: 100, Period: time.Second, Burst: 1}, PerSecond(100, 0))
}
