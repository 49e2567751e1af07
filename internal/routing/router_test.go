package routing

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickster-vod/edge/internal/cache"
	"github.com/trickster-vod/edge/internal/config"
	"github.com/trickster-vod/edge/internal/origin"
	"github.com/trickster-vod/edge/internal/proxy"
)

type noopOrigin struct{}

func (noopOrigin) Get(ctx context.Context, bucket, key, rangeHeader string) (*origin.Object, error) {
	return &origin.Object{Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (noopOrigin) Head(ctx context.Context, bucket, key string) (*origin.Object, error) {
	return &origin.Object{}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{CDNBase: "cdn", ProxyBase: "trickster"},
		Origin: config.OriginConfig{DefaultBucket: "default"},
	}
	cacheMgr := cache.NewManager(cache.BuildConfig{
		Memory: cache.MemoryConfig{MaxItems: 100, MaxSizeBytes: 1 << 20, CheckPeriod: time.Hour, DefaultTTL: time.Minute},
	})
	require.NoError(t, cacheMgr.Initialize(context.Background(), "memory"))

	pipeline := proxy.New(proxy.Config{StreamMaxBytes: 1 << 20, PlaylistMaxBytes: 1 << 20, DefaultTTL: time.Minute, CDNBase: "/cdn"}, cacheMgr, noopOrigin{})
	handler := proxy.NewHandler(cfg, cacheMgr, pipeline)
	return New(cfg, handler)
}

func TestRouterSelfDescriptionAtRoot(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterStatusUnderProxyBase(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/trickster/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterCacheHealthUnderProxyBase(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/trickster/cache/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterObjectPathUnderCDNBase(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/cdn/videos/a.mp4", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterCacheClearRequiresPost(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/trickster/cache/clear", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
