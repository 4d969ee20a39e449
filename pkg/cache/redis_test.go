package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedisCache_JSONRoundTripAndExpiry(t *testing.T) {
	rc, mr := newTestCache(t)
	ctx := context.Background()

	type quote struct {
		Symbol string  `json:"symbol"`
		Vol    float64 `json:"vol"`
	}
	require.NoError(t, rc.SetJSON(ctx, "q:AAPL", quote{"AAPL", 0.2}, time.Minute))

	var got quote
	hit, err := rc.GetJSON(ctx, "q:AAPL", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, quote{"AAPL", 0.2}, got)

	ttl, err := rc.TTL(ctx, "q:AAPL")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(2 * time.Minute)
	hit, err = rc.GetJSON(ctx, "q:AAPL", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCache_MissAndDelete(t *testing.T) {
	rc, _ := newTestCache(t)
	ctx := context.Background()

	val, err := rc.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, rc.Set(ctx, "k", "v", 0))
	require.NoError(t, rc.Delete(ctx, "k"))
	require.NoError(t, rc.Delete(ctx))
	val, err = rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestRedisCache_CorruptPayload(t *testing.T) {
	rc, mr := newTestCache(t)
	require.NoError(t, mr.Set("bad", "{"))

	var dest map[string]any
	_, err := rc.GetJSON(context.Background(), "bad", &dest)
	require.Error(t, err)
}

func TestNew_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	host := mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	rc, err := New(context.Background(), Config{Host: host, Port: port, ConnTimeout: 1})
	require.NoError(t, err)
	require.NoError(t, rc.Ping(context.Background()))
	require.NoError(t, rc.Close())

	mr.Close()
	_, err = New(context.Background(), Config{Host: host, Port: port, ConnTimeout: 1})
	require.Error(t, err)
}
