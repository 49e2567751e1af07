package cache

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickster-vod/edge/internal/logging"
)

// RedisConfig configures the L1 (fast key-value) backend (C3).
type RedisConfig struct {
	Host            string
	Port            int
	Password        string
	DB              int
	Prefix          string
	MaxRetries      int
	ConnectTimeout  time.Duration
	CommandTimeout  time.Duration
	MemoryThreshold float64
	// DefaultTTL applies to Sets that omit a TTL.
	DefaultTTL time.Duration
}

// hash field names for the CacheItem encoding (§4.3).
const (
	fData         = "data"
	fSize         = "size"
	fContentType  = "contentType"
	fETag         = "etag"
	fLastModified = "lastModified"
	fCreatedAt    = "createdAt"
	fExpiresAt    = "expiresAt"
	fHitCount     = "hitCount"
)

// Redis is the L1 Backend: a connection-pooled, lazily-connected remote
// key-value store with per-item TTL and base64-encoded payloads.
type Redis struct {
	cfg    RedisConfig
	client *redis.Client

	hits, misses, errors atomic.Int64
	connected            atomic.Bool
}

// NewRedis constructs an L1 backend; call Initialize before use.
func NewRedis(cfg RedisConfig) *Redis {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "vodedge:"
	}
	return &Redis{cfg: cfg}
}

func (r *Redis) prefixed(key string) string { return r.cfg.Prefix + key }

// Initialize lazily constructs the client; the go-redis pool itself dials
// on first command, so a reachability PING is issued here to fail fast and
// let the Manager decide on a Memory fallback.
func (r *Redis) Initialize(ctx context.Context) error {
	r.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port),
		Password:     r.cfg.Password,
		DB:           r.cfg.DB,
		MaxRetries:   r.cfg.MaxRetries,
		DialTimeout:  r.cfg.ConnectTimeout,
		ReadTimeout:  r.cfg.CommandTimeout,
		WriteTimeout: r.cfg.CommandTimeout,
	})
	cctx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()
	if err := r.client.Ping(cctx).Err(); err != nil {
		r.connected.Store(false)
		return fmt.Errorf("redis: initial ping failed: %w", err)
	}
	r.connected.Store(true)
	return nil
}

func (r *Redis) cmdCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CommandTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.CommandTimeout)
}

// Get implements Backend: an atomic HGETALL, expired items scheduled for
// delete and returned as a miss. A command that cannot complete within the
// configured timeout also returns a miss (never blocks the request).
func (r *Redis) Get(ctx context.Context, key string) *Item {
	cctx, cancel := r.cmdCtx(ctx)
	defer cancel()

	pk := r.prefixed(key)
	m, err := r.client.HGetAll(cctx, pk).Result()
	if err != nil {
		r.errors.Add(1)
		r.misses.Add(1)
		return nil
	}
	if len(m) == 0 {
		r.misses.Add(1)
		return nil
	}

	item, err := decodeItem(m)
	if err != nil {
		r.errors.Add(1)
		r.misses.Add(1)
		return nil
	}

	if item.Expired(time.Now()) {
		go r.client.Del(context.Background(), pk)
		r.misses.Add(1)
		return nil
	}

	r.client.HIncrBy(cctx, pk, fHitCount, 1)
	item.HitCount++
	r.hits.Add(1)
	return item
}

// Set implements Backend: writes the item as a hash with store-native TTL
// equal to the resolved TTL.
func (r *Redis) Set(ctx context.Context, key string, v []byte, opts SetOptions) bool {
	cctx, cancel := r.cmdCtx(ctx)
	defer cancel()

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = r.cfg.DefaultTTL
	}
	now := time.Now()
	item := &Item{
		Data:         v,
		Size:         int64(len(v)),
		ContentType:  opts.ContentType,
		ETag:         opts.ETag,
		LastModified: opts.LastModified,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	pk := r.prefixed(key)
	pipe := r.client.TxPipeline()
	pipe.HSet(cctx, pk, encodeItem(item))
	pipe.Expire(cctx, pk, ttl)
	if _, err := pipe.Exec(cctx); err != nil {
		r.errors.Add(1)
		logging.Debug("redis set failed", logging.Fields{"key": key, "error": err.Error()})
		return false
	}
	return true
}

// Delete implements Backend.
func (r *Redis) Delete(ctx context.Context, key string) bool {
	cctx, cancel := r.cmdCtx(ctx)
	defer cancel()
	if err := r.client.Del(cctx, r.prefixed(key)).Err(); err != nil {
		r.errors.Add(1)
		return false
	}
	return true
}

// Exists implements Backend.
func (r *Redis) Exists(ctx context.Context, key string) bool {
	cctx, cancel := r.cmdCtx(ctx)
	defer cancel()
	n, err := r.client.Exists(cctx, r.prefixed(key)).Result()
	if err != nil {
		r.errors.Add(1)
		return false
	}
	return n > 0
}

// Clear implements Backend: enumerates and deletes every key under the
// configured prefix, leaving other tenants on the same store untouched.
func (r *Redis) Clear(ctx context.Context) bool {
	iter := r.client.Scan(ctx, 0, r.cfg.Prefix+"*", 0).Iterator()
	keys := make([]string, 0, 256)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.errors.Add(1)
		return false
	}
	if len(keys) == 0 {
		return true
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.errors.Add(1)
		return false
	}
	return true
}

// GetStats implements Backend; items is derived from keyspace enumeration
// under the prefix and may be approximate under concurrent writes.
func (r *Redis) GetStats(ctx context.Context) Stats {
	hits, misses, errs := r.hits.Load(), r.misses.Load(), r.errors.Load()
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	count := r.countKeys(ctx)
	return Stats{Mode: "redis", Hits: hits, Misses: misses, Errors: errs, Items: count, HitRatio: ratio, Connected: r.connected.Load()}
}

func (r *Redis) countKeys(ctx context.Context) int64 {
	var count int64
	iter := r.client.Scan(ctx, 0, r.cfg.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}

// IsHealthy implements Backend.
func (r *Redis) IsHealthy(ctx context.Context) bool {
	cctx, cancel := r.cmdCtx(ctx)
	defer cancel()
	if err := r.client.Ping(cctx).Err(); err != nil {
		r.connected.Store(false)
		return false
	}
	r.connected.Store(true)
	return true
}

// Close implements Backend.
func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	r.connected.Store(false)
	return r.client.Close()
}

// GetCapacityInfo implements Backend; derived from store-reported used
// memory and may be approximate.
func (r *Redis) GetCapacityInfo(ctx context.Context) CapacityInfo {
	info, err := r.client.Info(ctx, "memory").Result()
	if err != nil {
		r.errors.Add(1)
		return CapacityInfo{}
	}
	used := parseInfoInt(info, "used_memory:")
	maxMem := parseInfoInt(info, "maxmemory:")
	if maxMem == 0 {
		// The server has no configured ceiling; approximate one from the
		// configured memory threshold so percentage math is still meaningful.
		if r.cfg.MemoryThreshold > 0 {
			maxMem = int64(float64(used) / r.cfg.MemoryThreshold)
		} else {
			maxMem = used
		}
	}
	var pct float64
	if maxMem > 0 {
		pct = float64(used) / float64(maxMem) * 100
	}
	count := r.countKeys(ctx)
	return CapacityInfo{UsedBytes: used, MaxBytes: maxMem, UsedPercentage: pct, ItemCount: count}
}

func parseInfoInt(info, field string) int64 {
	idx := strings.Index(info, field)
	if idx < 0 {
		return 0
	}
	rest := info[idx+len(field):]
	end := strings.Index(rest, "\r\n")
	if end < 0 {
		end = len(rest)
	}
	n, _ := strconv.ParseInt(rest[:end], 10, 64)
	return n
}

// GetItemsByHitCount implements Backend via a prefix scan plus per-key
// HitCount read; best-effort, may return fewer than requested.
func (r *Redis) GetItemsByHitCount(ctx context.Context, limit int) []HitCountEntry {
	iter := r.client.Scan(ctx, 0, r.cfg.Prefix+"*", 0).Iterator()
	all := make([]HitCountEntry, 0, limit*2)
	for iter.Next(ctx) {
		pk := iter.Val()
		hc, err := r.client.HGet(ctx, pk, fHitCount).Int64()
		if err != nil {
			continue
		}
		all = append(all, HitCountEntry{Key: pk[len(r.cfg.Prefix):], HitCount: hc})
	}
	sortHitCountEntries(all)
	if limit < len(all) {
		all = all[:limit]
	}
	return all
}

// IncrementHitCount implements Backend.
func (r *Redis) IncrementHitCount(ctx context.Context, key string) bool {
	cctx, cancel := r.cmdCtx(ctx)
	defer cancel()
	pk := r.prefixed(key)
	exists, err := r.client.Exists(cctx, pk).Result()
	if err != nil || exists == 0 {
		return false
	}
	if err := r.client.HIncrBy(cctx, pk, fHitCount, 1).Err(); err != nil {
		r.errors.Add(1)
		return false
	}
	return true
}

// Mode implements Backend.
func (r *Redis) Mode() string { return "redis" }

func encodeItem(item *Item) map[string]interface{} {
	return map[string]interface{}{
		fData:         base64.StdEncoding.EncodeToString(item.Data),
		fSize:         item.Size,
		fContentType:  item.ContentType,
		fETag:         item.ETag,
		fLastModified: item.LastModified.Format(time.RFC3339),
		fCreatedAt:    item.CreatedAt.Format(time.RFC3339),
		fExpiresAt:    item.ExpiresAt.Format(time.RFC3339),
		fHitCount:     item.HitCount,
	}
}

func decodeItem(m map[string]string) (*Item, error) {
	data, err := base64.StdEncoding.DecodeString(m[fData])
	if err != nil {
		return nil, fmt.Errorf("redis: bad data encoding: %w", err)
	}
	size, _ := strconv.ParseInt(m[fSize], 10, 64)
	hitCount, _ := strconv.ParseInt(m[fHitCount], 10, 64)
	lastMod, _ := time.Parse(time.RFC3339, m[fLastModified])
	createdAt, _ := time.Parse(time.RFC3339, m[fCreatedAt])
	expiresAt, _ := time.Parse(time.RFC3339, m[fExpiresAt])
	return &Item{
		Data:         data,
		Size:         size,
		ContentType:  m[fContentType],
		ETag:         m[fETag],
		LastModified: lastMod,
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
		HitCount:     hitCount,
	}, nil
}

var _ Backend = (*Redis)(nil)
