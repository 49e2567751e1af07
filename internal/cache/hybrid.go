package cache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trickster-vod/edge/internal/logging"
)

// Hybrid composes an L1 (Redis) and L2 (Cassandra) backend with
// read-through, write-both semantics (C5).
type Hybrid struct {
	l1 Backend
	l2 Backend

	promotions errgroup.Group
}

// NewHybrid constructs a Hybrid backend from already-built L1/L2 backends.
func NewHybrid(l1, l2 Backend) *Hybrid {
	return &Hybrid{l1: l1, l2: l2}
}

// Initialize connects both tiers in parallel; it is fatal only if both fail.
func (h *Hybrid) Initialize(ctx context.Context) error {
	var g errgroup.Group
	var l1Err, l2Err error
	g.Go(func() error { l1Err = h.l1.Initialize(ctx); return nil })
	g.Go(func() error { l2Err = h.l2.Initialize(ctx); return nil })
	_ = g.Wait()

	if l1Err != nil {
		logging.Warn("hybrid: L1 initialize failed", logging.Fields{"error": l1Err.Error()})
	}
	if l2Err != nil {
		logging.Warn("hybrid: L2 initialize failed", logging.Fields{"error": l2Err.Error()})
	}
	if l1Err != nil && l2Err != nil {
		return l2Err
	}
	return nil
}

// Get implements Backend: try L1; on miss try L2 and promote asynchronously.
func (h *Hybrid) Get(ctx context.Context, key string) *Item {
	if item := h.l1.Get(ctx, key); item != nil {
		return item
	}
	item := h.l2.Get(ctx, key)
	if item == nil {
		return nil
	}
	h.promote(key, item)
	return item
}

// promote fires a detached, but tracked, Set into L1 with the L2 item's
// remaining TTL so shutdown can await in-flight promotions (via Wait)
// instead of leaking goroutines (§9).
func (h *Hybrid) promote(key string, item *Item) {
	remaining := time.Until(item.ExpiresAt)
	if remaining < time.Second {
		remaining = time.Second
	}
	data := item.Data
	opts := SetOptions{TTL: remaining, ContentType: item.ContentType, ETag: item.ETag, LastModified: item.LastModified}
	h.promotions.Go(func() error {
		h.l1.Set(context.Background(), key, data, opts)
		return nil
	})
}

// Wait blocks until all in-flight promotions complete; called during
// graceful shutdown so promotions are never silently abandoned.
func (h *Hybrid) Wait() { _ = h.promotions.Wait() }

// Set implements Backend: writes both in parallel, succeeds if either does.
func (h *Hybrid) Set(ctx context.Context, key string, v []byte, opts SetOptions) bool {
	var okL1, okL2 bool
	var g errgroup.Group
	g.Go(func() error { okL1 = h.l1.Set(ctx, key, v, opts); return nil })
	g.Go(func() error { okL2 = h.l2.Set(ctx, key, v, opts); return nil })
	_ = g.Wait()
	return okL1 || okL2
}

// Delete implements Backend: issues to both, succeeds if either does.
func (h *Hybrid) Delete(ctx context.Context, key string) bool {
	var okL1, okL2 bool
	var g errgroup.Group
	g.Go(func() error { okL1 = h.l1.Delete(ctx, key); return nil })
	g.Go(func() error { okL2 = h.l2.Delete(ctx, key); return nil })
	_ = g.Wait()
	return okL1 || okL2
}

// Exists implements Backend: L1 first, then L2.
func (h *Hybrid) Exists(ctx context.Context, key string) bool {
	if h.l1.Exists(ctx, key) {
		return true
	}
	return h.l2.Exists(ctx, key)
}

// Clear implements Backend: issues to both, succeeds if either does.
func (h *Hybrid) Clear(ctx context.Context) bool {
	var okL1, okL2 bool
	var g errgroup.Group
	g.Go(func() error { okL1 = h.l1.Clear(ctx); return nil })
	g.Go(func() error { okL2 = h.l2.Clear(ctx); return nil })
	_ = g.Wait()
	return okL1 || okL2
}

// GetStats implements Backend: combines both tiers' counters.
func (h *Hybrid) GetStats(ctx context.Context) Stats {
	s1 := h.l1.GetStats(ctx)
	s2 := h.l2.GetStats(ctx)
	hits := s1.Hits + s2.Hits
	misses := s1.Misses + s2.Misses
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	return Stats{
		Mode:      "hybrid",
		Hits:      hits,
		Misses:    misses,
		Errors:    s1.Errors + s2.Errors,
		Items:     s1.Items + s2.Items,
		HitRatio:  ratio,
		Connected: s1.Connected || s2.Connected,
	}
}

// IsHealthy implements Backend: logical OR of either tier being reachable.
func (h *Hybrid) IsHealthy(ctx context.Context) bool {
	return h.l1.IsHealthy(ctx) || h.l2.IsHealthy(ctx)
}

// Close implements Backend: waits for in-flight promotions, then closes both.
func (h *Hybrid) Close() error {
	h.Wait()
	err1 := h.l1.Close()
	err2 := h.l2.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// GetCapacityInfo implements Backend by exposing L1's info; the Capacity
// Manager queries each tier independently via L1()/L2() in hybrid mode.
func (h *Hybrid) GetCapacityInfo(ctx context.Context) CapacityInfo {
	return h.l1.GetCapacityInfo(ctx)
}

// L1 exposes the L1 tier for components (e.g. the Capacity Manager) that
// must address each tier independently in hybrid mode.
func (h *Hybrid) L1() Backend { return h.l1 }

// L2 exposes the L2 tier for components that must address it independently.
func (h *Hybrid) L2() Backend { return h.l2 }

// GetItemsByHitCount implements Backend: union both lists, merge by key
// summing HitCount, sort ascending, return the first limit.
func (h *Hybrid) GetItemsByHitCount(ctx context.Context, limit int) []HitCountEntry {
	a := h.l1.GetItemsByHitCount(ctx, limit)
	b := h.l2.GetItemsByHitCount(ctx, limit)
	merged := make(map[string]int64, len(a)+len(b))
	for _, e := range a {
		merged[e.Key] += e.HitCount
	}
	for _, e := range b {
		merged[e.Key] += e.HitCount
	}
	out := make([]HitCountEntry, 0, len(merged))
	for k, v := range merged {
		out = append(out, HitCountEntry{Key: k, HitCount: v})
	}
	sortHitCountEntries(out)
	if limit < len(out) {
		out = out[:limit]
	}
	return out
}

// IncrementHitCount implements Backend: to both, succeeds if either does.
func (h *Hybrid) IncrementHitCount(ctx context.Context, key string) bool {
	var okL1, okL2 bool
	var g errgroup.Group
	g.Go(func() error { okL1 = h.l1.IncrementHitCount(ctx, key); return nil })
	g.Go(func() error { okL2 = h.l2.IncrementHitCount(ctx, key); return nil })
	_ = g.Wait()
	return okL1 || okL2
}

// Mode implements Backend.
func (h *Hybrid) Mode() string { return "hybrid" }

var _ Backend = (*Hybrid)(nil)
