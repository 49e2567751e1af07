package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryConfig bounds the in-process Memory backend (C2).
type MemoryConfig struct {
	MaxItems     int
	MaxSizeBytes int64
	// CheckPeriod is how often the lazy-TTL sweep runs in the background.
	CheckPeriod time.Duration
	// DefaultTTL applies when a Set omits one.
	DefaultTTL time.Duration
}

type memoryRecord struct {
	item *Item
	// seq gives Memory an insertion-order proxy for LRU, used both for
	// bulk eviction on admission pressure and as the hitCount tie-break.
	seq int64
}

// Memory is the bounded in-process Backend (C2). It is also the universal
// fallback every other mode collapses to on initialization failure.
type Memory struct {
	cfg MemoryConfig

	mu         sync.RWMutex
	items      map[string]*memoryRecord
	usedBytes  int64
	seqCounter int64

	hits, misses, errors atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMemory constructs a Memory backend; call Initialize before use.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 10000
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 512 * 1024 * 1024
	}
	if cfg.CheckPeriod <= 0 {
		cfg.CheckPeriod = 60 * time.Second
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	return &Memory{
		cfg:   cfg,
		items: make(map[string]*memoryRecord),
	}
}

// Initialize starts the periodic TTL sweep. Memory never fails to initialize.
func (m *Memory) Initialize(ctx context.Context) error {
	m.stopCh = make(chan struct{})
	m.wg.Add(1)
	go m.sweepLoop()
	return nil
}

func (m *Memory) sweepLoop() {
	defer m.wg.Done()
	t := time.NewTicker(m.cfg.CheckPeriod)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.sweepExpired()
		}
	}
}

func (m *Memory) sweepExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.items {
		if rec.item.Expired(now) {
			m.usedBytes -= rec.item.Size
			delete(m.items, k)
		}
	}
}

// Get implements Backend.
func (m *Memory) Get(ctx context.Context, key string) *Item {
	m.mu.Lock()
	rec, ok := m.items[key]
	if !ok {
		m.mu.Unlock()
		m.misses.Add(1)
		return nil
	}
	if rec.item.Expired(time.Now()) {
		m.usedBytes -= rec.item.Size
		delete(m.items, key)
		m.mu.Unlock()
		m.misses.Add(1)
		return nil
	}
	rec.item.HitCount++
	item := *rec.item
	m.mu.Unlock()
	m.hits.Add(1)
	return &item
}

// Set implements Backend, evicting ~20% of existing keys in bulk (by
// insertion order as an LRU proxy) when admitting v would breach MaxSizeBytes,
// and rejecting admission outright if eviction still leaves no room.
func (m *Memory) Set(ctx context.Context, key string, v []byte, opts SetOptions) bool {
	size := int64(len(v))
	if size > m.cfg.MaxSizeBytes {
		return false
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}
	now := time.Now()
	item := &Item{
		Data:         v,
		Size:         size,
		ContentType:  opts.ContentType,
		ETag:         opts.ETag,
		LastModified: opts.LastModified,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.items[key]; ok {
		m.usedBytes -= prev.item.Size
		delete(m.items, key)
	}

	if m.usedBytes+size > m.cfg.MaxSizeBytes || int64(len(m.items)) >= int64(m.cfg.MaxItems) {
		m.evictBulkLocked()
		if m.usedBytes+size > m.cfg.MaxSizeBytes {
			return false
		}
	}

	m.seqCounter++
	m.items[key] = &memoryRecord{item: item, seq: m.seqCounter}
	m.usedBytes += size
	return true
}

// evictBulkLocked drops ~20% of the oldest (by insertion sequence) items.
// Caller must hold m.mu.
func (m *Memory) evictBulkLocked() {
	n := len(m.items) / 5
	if n < 1 {
		n = 1
	}
	type kv struct {
		key string
		seq int64
	}
	ordered := make([]kv, 0, len(m.items))
	for k, rec := range m.items {
		ordered = append(ordered, kv{k, rec.seq})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	for i := 0; i < n && i < len(ordered); i++ {
		rec := m.items[ordered[i].key]
		m.usedBytes -= rec.item.Size
		delete(m.items, ordered[i].key)
	}
}

// Delete implements Backend.
func (m *Memory) Delete(ctx context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.items[key]; ok {
		m.usedBytes -= rec.item.Size
		delete(m.items, key)
	}
	return true
}

// Exists implements Backend.
func (m *Memory) Exists(ctx context.Context, key string) bool {
	m.mu.RLock()
	rec, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if rec.item.Expired(time.Now()) {
		m.Delete(ctx, key)
		return false
	}
	return true
}

// Clear implements Backend.
func (m *Memory) Clear(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*memoryRecord)
	m.usedBytes = 0
	return true
}

// GetStats implements Backend.
func (m *Memory) GetStats(ctx context.Context) Stats {
	m.mu.RLock()
	items := int64(len(m.items))
	m.mu.RUnlock()
	hits, misses, errs := m.hits.Load(), m.misses.Load(), m.errors.Load()
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	return Stats{Mode: "memory", Hits: hits, Misses: misses, Errors: errs, Items: items, HitRatio: ratio, Connected: true}
}

// IsHealthy implements Backend; Memory is always healthy once initialized.
func (m *Memory) IsHealthy(ctx context.Context) bool { return true }

// Close implements Backend.
func (m *Memory) Close() error {
	if m.stopCh != nil {
		close(m.stopCh)
		m.wg.Wait()
		m.stopCh = nil
	}
	return nil
}

// GetCapacityInfo implements Backend; Memory's accounting is exact.
func (m *Memory) GetCapacityInfo(ctx context.Context) CapacityInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pct float64
	if m.cfg.MaxSizeBytes > 0 {
		pct = float64(m.usedBytes) / float64(m.cfg.MaxSizeBytes) * 100
	}
	return CapacityInfo{
		UsedBytes:      m.usedBytes,
		MaxBytes:       m.cfg.MaxSizeBytes,
		UsedPercentage: pct,
		ItemCount:      int64(len(m.items)),
		MaxItems:       int64(m.cfg.MaxItems),
	}
}

// GetItemsByHitCount implements Backend, ascending by HitCount with
// insertion order (seq) as the tie-break.
func (m *Memory) GetItemsByHitCount(ctx context.Context, limit int) []HitCountEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type kv struct {
		key      string
		hitCount int64
		seq      int64
	}
	all := make([]kv, 0, len(m.items))
	for k, rec := range m.items {
		all = append(all, kv{k, rec.item.HitCount, rec.seq})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].hitCount != all[j].hitCount {
			return all[i].hitCount < all[j].hitCount
		}
		return all[i].seq < all[j].seq
	})
	if limit > len(all) {
		limit = len(all)
	}
	out := make([]HitCountEntry, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, HitCountEntry{Key: all[i].key, HitCount: all[i].hitCount})
	}
	return out
}

// IncrementHitCount implements Backend.
func (m *Memory) IncrementHitCount(ctx context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.items[key]
	if !ok {
		return false
	}
	rec.item.HitCount++
	return true
}

// Mode implements Backend.
func (m *Memory) Mode() string { return "memory" }

var _ Backend = (*Memory)(nil)
