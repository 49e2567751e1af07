package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	r := NewRedis(RedisConfig{
		Host:           mr.Host(),
		Port:           port,
		Prefix:         "vodedge-test:",
		ConnectTimeout: time.Second,
		CommandTimeout: time.Second,
		DefaultTTL:     time.Minute,
	})
	require.NoError(t, r.Initialize(context.Background()))
	return r, mr
}

func TestRedisSetGetRoundTrip(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()

	ok := r.Set(ctx, "a.mp4", []byte("hello"), SetOptions{ContentType: "video/mp4", ETag: "abc"})
	assert.True(t, ok)

	item := r.Get(ctx, "a.mp4")
	require.NotNil(t, item)
	assert.Equal(t, []byte("hello"), item.Data)
	assert.Equal(t, int64(5), item.Size)
	assert.Equal(t, "video/mp4", item.ContentType)
	assert.Equal(t, "abc", item.ETag)
}

func TestRedisGetIsMissWhenAbsent(t *testing.T) {
	r, _ := newTestRedis(t)
	assert.Nil(t, r.Get(context.Background(), "missing"))
}

func TestRedisDeleteThenMiss(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	r.Set(ctx, "k", []byte("v"), SetOptions{})
	assert.True(t, r.Exists(ctx, "k"))

	assert.True(t, r.Delete(ctx, "k"))
	assert.False(t, r.Exists(ctx, "k"))
	assert.Nil(t, r.Get(ctx, "k"))
}

func TestRedisExpiryIsAMiss(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	r.Set(ctx, "k", []byte("v"), SetOptions{TTL: time.Second})
	mr.FastForward(2 * time.Second)
	assert.Nil(t, r.Get(ctx, "k"))
}

func TestRedisHitCountIncrementsOnGet(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	r.Set(ctx, "k", []byte("v"), SetOptions{})

	first := r.Get(ctx, "k")
	require.NotNil(t, first)
	assert.Equal(t, int64(1), first.HitCount)

	second := r.Get(ctx, "k")
	require.NotNil(t, second)
	assert.Equal(t, int64(2), second.HitCount)
}

func TestRedisClearOnlyAffectsPrefixedKeys(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	r.Set(ctx, "a", []byte("1"), SetOptions{})
	r.Set(ctx, "b", []byte("2"), SetOptions{})
	require.NoError(t, mr.Set("unrelated:other-app-key", "untouched"))

	assert.True(t, r.Clear(ctx))
	assert.False(t, r.Exists(ctx, "a"))
	assert.False(t, r.Exists(ctx, "b"))

	val, err := mr.Get("unrelated:other-app-key")
	require.NoError(t, err)
	assert.Equal(t, "untouched", val)
}

func TestRedisIsHealthyReflectsConnectivity(t *testing.T) {
	r, mr := newTestRedis(t)
	assert.True(t, r.IsHealthy(context.Background()))
	mr.Close()
	assert.False(t, r.IsHealthy(context.Background()))
}

func TestRedisGetStatsTracksHitsAndMisses(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	r.Set(ctx, "k", []byte("v"), SetOptions{})
	r.Get(ctx, "k")
	r.Get(ctx, "nope")

	stats := r.GetStats(ctx)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, "redis", stats.Mode)
}
