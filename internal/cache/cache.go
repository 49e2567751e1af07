// Package cache implements the pluggable multi-tier content cache: the
// Memory, L1 (fast key-value), L2 (persistent wide-column), and Hybrid
// (L1+L2) backends behind one Backend contract, plus the Manager that
// selects and can runtime-switch between them.
package cache

import (
	"context"
	"sort"
	"time"
)

// Item is a single cached object plus the metadata the HTTP surface needs
// to reconstruct response headers without a second origin round trip.
type Item struct {
	Data         []byte
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
	HitCount     int64
}

// Expired reports whether the item is stale as of now. A Get that observes
// this MUST behave as a miss and remove the item (invariant 1).
func (it *Item) Expired(now time.Time) bool {
	return !it.ExpiresAt.IsZero() && now.After(it.ExpiresAt)
}

// SetOptions carries the optional metadata and TTL override for a Set.
type SetOptions struct {
	// TTL overrides the backend default when non-zero.
	TTL          time.Duration
	ContentType  string
	ETag         string
	LastModified time.Time
}

// CapacityInfo reports a backend's current space usage. For Memory this is
// exact; for remote stores it is derived from store-reported counters and
// may be approximate.
type CapacityInfo struct {
	UsedBytes      int64
	MaxBytes       int64
	UsedPercentage float64
	ItemCount      int64
	MaxItems       int64
}

// Stats is a point-in-time snapshot of a backend's operational counters.
type Stats struct {
	Mode      string
	Hits      int64
	Misses    int64
	Errors    int64
	Items     int64
	HitRatio  float64
	Connected bool
}

// HitCountEntry is one row of a getItemsByHitCount scan.
type HitCountEntry struct {
	Key      string
	HitCount int64
}

// Backend is the uniform contract every cache tier implements (C1). Every
// method is total: implementations must not panic or propagate errors to
// callers. Failures degrade to a miss/false return and increment the
// backend's internal error counter.
type Backend interface {
	// Initialize prepares the backend for use (connections, schema, etc).
	// A non-nil error here is the only way callers learn initialization
	// failed; Cache Manager decides whether to fall back to Memory.
	Initialize(ctx context.Context) error

	// Get returns the item for key, or nil if absent, expired, or errored.
	Get(ctx context.Context, key string) *Item

	// Set stores v under key with opts, replacing any prior item for that
	// key. Returns false if admission was refused or the write failed.
	Set(ctx context.Context, key string, v []byte, opts SetOptions) bool

	// Delete removes key's item. Returns false if the delete failed; a
	// delete of an absent key is not an error and returns true.
	Delete(ctx context.Context, key string) bool

	// Exists reports whether key currently has a live (unexpired) item.
	Exists(ctx context.Context, key string) bool

	// Clear empties the backend. Returns false if the clear failed.
	Clear(ctx context.Context) bool

	// GetStats returns a snapshot of the backend's counters.
	GetStats(ctx context.Context) Stats

	// IsHealthy reports whether the backend can currently serve requests.
	IsHealthy(ctx context.Context) bool

	// Close releases all held connections and marks the backend
	// disconnected. Idempotent.
	Close() error

	// GetCapacityInfo reports current space usage for the Capacity Manager.
	GetCapacityInfo(ctx context.Context) CapacityInfo

	// GetItemsByHitCount returns up to limit items ascending by HitCount.
	// Tie-breaking is implementation-defined (§9 Open Question b).
	GetItemsByHitCount(ctx context.Context, limit int) []HitCountEntry

	// IncrementHitCount atomically bumps key's HitCount. Returns false if
	// the key does not exist or the increment failed.
	IncrementHitCount(ctx context.Context, key string) bool

	// Mode identifies which configured cache mode this instance serves.
	Mode() string
}

// sortHitCountEntries orders entries ascending by HitCount, falling back to
// key lexicographic order as a deterministic tie-break (§9 Open Question b).
func sortHitCountEntries(entries []HitCountEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].HitCount != entries[j].HitCount {
			return entries[i].HitCount < entries[j].HitCount
		}
		return entries[i].Key < entries[j].Key
	})
}
