package capacity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickster-vod/edge/internal/cache"
)

func newMemoryManager(t *testing.T, maxBytes int64) *cache.Manager {
	t.Helper()
	m := cache.NewManager(cache.BuildConfig{
		Memory: cache.MemoryConfig{MaxItems: 1000, MaxSizeBytes: maxBytes, CheckPeriod: time.Hour, DefaultTTL: time.Hour},
	})
	require.NoError(t, m.Initialize(context.Background(), "memory"))
	return m
}

func TestForceCapacityCheckNoopOnMemoryMode(t *testing.T) {
	cm := newMemoryManager(t, 1024)
	capMgr := New(cm, time.Hour, Thresholds{L1: 85, L2: 90})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		cm.Set(ctx, string(rune('a'+i)), []byte("xxxxx"), cache.SetOptions{})
	}
	before := cm.GetStats(ctx).Items

	capMgr.ForceCapacityCheck(ctx)

	assert.Equal(t, before, cm.GetStats(ctx).Items)
}

func TestSetThresholdsUpdatesWithoutRestart(t *testing.T) {
	cm := newMemoryManager(t, 1024)
	capMgr := New(cm, time.Hour, Thresholds{L1: 85, L2: 90})

	capMgr.SetThresholds(Thresholds{L1: 50, L2: 60})
	got := capMgr.getThresholds()
	assert.Equal(t, 50.0, got.L1)
	assert.Equal(t, 60.0, got.L2)
}

func TestEvictBatchSizeHasFloor(t *testing.T) {
	n := evictBatchSize(cache.CapacityInfo{ItemCount: 2}, 0.10)
	assert.Equal(t, minBatch, n)
}

func TestEvictBatchSizeScalesWithFraction(t *testing.T) {
	n := evictBatchSize(cache.CapacityInfo{ItemCount: 100}, 0.20)
	assert.Equal(t, 20, n)
}

func TestStartAndStopMonitoringCleanShutdown(t *testing.T) {
	cm := newMemoryManager(t, 1024)
	capMgr := New(cm, 10*time.Millisecond, Thresholds{L1: 85, L2: 90})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	capMgr.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	capMgr.StopMonitoring()
}
