// Package capacity implements the periodic Capacity Manager (C7): a
// watchdog that keeps each cache tier below its configured usedPercentage
// threshold by migrating or evicting the lowest-hitCount items.
package capacity

import (
	"context"
	"sync"
	"time"

	"github.com/trickster-vod/edge/internal/cache"
	"github.com/trickster-vod/edge/internal/logging"
	"github.com/trickster-vod/edge/internal/metrics"
)

// hybridTiers is satisfied by cache.Hybrid; the Capacity Manager needs to
// address L1 and L2 independently when the active backend is hybrid.
type hybridTiers interface {
	L1() cache.Backend
	L2() cache.Backend
}

// Thresholds are the usedPercentage points at which the watchdog acts.
// Both are runtime-updatable via SetThresholds.
type Thresholds struct {
	L1 float64 // migrate/evict at or above this percentage (default 85)
	L2 float64 // evict at or above this percentage (default 90)
}

// l1MigrateFraction and l2EvictFraction are the share of a tier's items moved or evicted once its
// threshold is crossed (§4.7: ~20% from L1, ~10% from L2).
const (
	l1MigrateFraction = 0.20
	l2EvictFraction   = 0.10
	minBatch          = 1
)

// Manager runs a ticking watchdog against the active cache.Manager and
// keeps each tier under its configured capacity threshold (C7).
type Manager struct {
	cache  *cache.Manager
	period time.Duration

	mu         sync.RWMutex
	thresholds Thresholds

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New constructs a Capacity Manager; call Start to begin ticking.
func New(cacheMgr *cache.Manager, period time.Duration, thresholds Thresholds) *Manager {
	if period <= 0 {
		period = time.Minute
	}
	return &Manager{
		cache:      cacheMgr,
		period:     period,
		thresholds: thresholds,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// SetThresholds updates the acting thresholds without restarting the watchdog.
func (m *Manager) SetThresholds(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = t
}

func (m *Manager) getThresholds() Thresholds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thresholds
}

// Start launches the ticking watchdog goroutine. Safe to call once.
func (m *Manager) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.ForceCapacityCheck(ctx)
		}
	}
}

// StopMonitoring signals the watchdog goroutine to exit and waits for it.
func (m *Manager) StopMonitoring() {
	m.once.Do(func() { close(m.stop) })
	<-m.done
}

// ForceCapacityCheck runs one capacity-check cycle immediately, independent
// of the ticker; the ticker loop and tests call it. No HTTP route exposes it.
func (m *Manager) ForceCapacityCheck(ctx context.Context) {
	backend := m.cache.Backend()
	if backend == nil {
		return
	}
	th := m.getThresholds()

	switch backend.Mode() {
	case "memory":
		// Memory enforces its own bound on admission; no watchdog action.
		return
	case "redis":
		m.checkAndEvict(ctx, backend, th.L1, l1MigrateFraction)
	case "cassandra":
		m.checkAndEvict(ctx, backend, th.L2, l2EvictFraction)
	case "hybrid":
		hy, ok := backend.(hybridTiers)
		if !ok {
			return
		}
		m.checkAndMigrate(ctx, hy.L1(), hy.L2(), th.L1)
		m.checkAndEvict(ctx, hy.L2(), th.L2, l2EvictFraction)
	}
}

// checkAndEvict evicts the lowest-hitCount fraction of tier's items once its
// usedPercentage crosses threshold. Used for standalone L1 or L2 modes,
// where there is no sibling tier to migrate into, and for L2 in hybrid mode.
func (m *Manager) checkAndEvict(ctx context.Context, tier cache.Backend, threshold, fraction float64) {
	info := tier.GetCapacityInfo(ctx)
	if info.UsedPercentage < threshold {
		return
	}
	batch := evictBatchSize(info, fraction)
	victims := tier.GetItemsByHitCount(ctx, batch)
	for _, v := range victims {
		tier.Delete(ctx, v.Key)
	}
	metrics.RecordEviction(tier.Mode(), len(victims))
	logging.Info("capacity: evicted items", logging.Fields{
		"mode": tier.Mode(), "count": len(victims), "usedPct": info.UsedPercentage,
	})
}

// checkAndMigrate moves the lowest-hitCount fraction of l1's items into l2
// once l1's usedPercentage crosses threshold. A race where a victim was
// deleted between the scan and the migrate is tolerated: Get returning nil
// simply skips that key.
func (m *Manager) checkAndMigrate(ctx context.Context, l1, l2 cache.Backend, threshold float64) {
	info := l1.GetCapacityInfo(ctx)
	if info.UsedPercentage < threshold {
		return
	}
	batch := evictBatchSize(info, l1MigrateFraction)
	victims := l1.GetItemsByHitCount(ctx, batch)

	migrated := 0
	for _, v := range victims {
		item := l1.Get(ctx, v.Key)
		if item == nil {
			continue
		}
		opts := cache.SetOptions{
			TTL:          time.Until(item.ExpiresAt),
			ContentType:  item.ContentType,
			ETag:         item.ETag,
			LastModified: item.LastModified,
		}
		if opts.TTL <= 0 {
			continue
		}
		if !l2.Set(ctx, v.Key, item.Data, opts) {
			continue
		}
		// hitCount is summed on migration per the item's documented invariant.
		for i := int64(0); i < item.HitCount; i++ {
			l2.IncrementHitCount(ctx, v.Key)
		}
		l1.Delete(ctx, v.Key)
		migrated++
	}
	metrics.RecordMigration(migrated)
	logging.Info("capacity: migrated L1 items to L2", logging.Fields{
		"count": migrated, "usedPct": info.UsedPercentage,
	})
}

// evictBatchSize derives an item-count batch from a tier's reported
// ItemCount and the configured fraction, with a floor of minBatch so a
// small but over-threshold tier still makes progress.
func evictBatchSize(info cache.CapacityInfo, fraction float64) int {
	n := int(float64(info.ItemCount) * fraction)
	if n < minBatch {
		n = minBatch
	}
	return n
}
