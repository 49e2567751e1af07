package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trickster-vod/edge/internal/logging"
	"github.com/trickster-vod/edge/internal/metrics"
)

// BuildConfig holds everything a Manager needs to construct any backend
// for any mode, so switchBackend can re-derive a fresh instance at runtime.
type BuildConfig struct {
	DefaultTTL time.Duration
	Memory     MemoryConfig
	Redis      RedisConfig
	Cassandra  CassandraConfig
}

// Manager owns the selected Backend for the process and mediates runtime
// mode switches (C6). All pass-through methods short-circuit to safe
// defaults when the Manager has not completed initialization.
type Manager struct {
	cfg BuildConfig

	mu          sync.RWMutex
	backend     Backend
	mode        string
	initialized bool
	fellBack    bool
}

// NewManager constructs a Manager; call Initialize(mode) before use.
func NewManager(cfg BuildConfig) *Manager {
	return &Manager{cfg: cfg}
}

func (m *Manager) build(mode string) (Backend, error) {
	switch mode {
	case "memory":
		return NewMemory(m.cfg.Memory), nil
	case "redis":
		return NewRedis(m.cfg.Redis), nil
	case "cassandra":
		return NewCassandra(m.cfg.Cassandra), nil
	case "redis-cassandra":
		return NewHybrid(NewRedis(m.cfg.Redis), NewCassandra(m.cfg.Cassandra)), nil
	default:
		return nil, fmt.Errorf("cache: unknown mode %q", mode)
	}
}

// Initialize constructs and initializes the backend for mode. On failure
// for any non-memory mode, it falls back to Memory and records the
// fallback; Memory itself never fails to initialize.
func (m *Manager) Initialize(ctx context.Context, mode string) error {
	b, err := m.build(mode)
	if err != nil {
		return err
	}

	if initErr := b.Initialize(ctx); initErr != nil {
		logging.Warn("cache manager: backend init failed, falling back to memory",
			logging.Fields{"mode": mode, "error": initErr.Error()})
		mb := NewMemory(m.cfg.Memory)
		_ = mb.Initialize(ctx)

		m.mu.Lock()
		m.backend = mb
		m.mode = "memory"
		m.initialized = true
		m.fellBack = true
		m.mu.Unlock()
		metrics.SetFallbackActive(true)
		return nil
	}

	m.mu.Lock()
	m.backend = b
	m.mode = mode
	m.initialized = true
	m.fellBack = false
	m.mu.Unlock()
	metrics.SetFallbackActive(false)
	return nil
}

// SwitchBackend closes the current backend, constructs and initializes a
// new one for mode, and swaps it in. On failure it falls back to Memory as
// a last resort, matching Initialize's behavior. Prior data is not carried
// over — this is a clean re-initialization, not a migration.
func (m *Manager) SwitchBackend(ctx context.Context, mode string) error {
	m.mu.Lock()
	old := m.backend
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	return m.Initialize(ctx, mode)
}

// Backend returns the currently active backend, or nil if uninitialized.
func (m *Manager) Backend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// Mode returns the currently active mode name.
func (m *Manager) Mode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// FellBack reports whether the active mode is a fallback from a failed init.
func (m *Manager) FellBack() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fellBack
}

// Get is a pass-through that returns nil (a safe miss) when uninitialized.
func (m *Manager) Get(ctx context.Context, key string) *Item {
	b := m.Backend()
	if b == nil {
		return nil
	}
	item := b.Get(ctx, key)
	metrics.RecordCacheResult(b.Mode(), item != nil)
	return item
}

// Set is a pass-through that returns false when uninitialized.
func (m *Manager) Set(ctx context.Context, key string, v []byte, opts SetOptions) bool {
	b := m.Backend()
	if b == nil {
		return false
	}
	return b.Set(ctx, key, v, opts)
}

// Delete is a pass-through that returns false when uninitialized.
func (m *Manager) Delete(ctx context.Context, key string) bool {
	b := m.Backend()
	if b == nil {
		return false
	}
	return b.Delete(ctx, key)
}

// Exists is a pass-through that returns false when uninitialized.
func (m *Manager) Exists(ctx context.Context, key string) bool {
	b := m.Backend()
	if b == nil {
		return false
	}
	return b.Exists(ctx, key)
}

// Clear is a pass-through that returns false when uninitialized.
func (m *Manager) Clear(ctx context.Context) bool {
	b := m.Backend()
	if b == nil {
		return false
	}
	return b.Clear(ctx)
}

// GetStats is a pass-through that returns a Stats with Mode "uninitialized"
// and zero counters when uninitialized.
func (m *Manager) GetStats(ctx context.Context) Stats {
	b := m.Backend()
	if b == nil {
		return Stats{Mode: "uninitialized"}
	}
	s := b.GetStats(ctx)
	s.Mode = m.Mode()
	return s
}

// IsHealthy is a pass-through that returns false when uninitialized.
func (m *Manager) IsHealthy(ctx context.Context) bool {
	b := m.Backend()
	if b == nil {
		return false
	}
	return b.IsHealthy(ctx)
}

// Close releases the active backend's resources.
func (m *Manager) Close() error {
	b := m.Backend()
	if b == nil {
		return nil
	}
	return b.Close()
}
