package proxy

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
	"github.com/trickster-vod/edge/internal/origin"
)

type fakeOrigin struct {
	obj *origin.Object
	err error
}

func (f *fakeOrigin) Get(ctx context.Context, bucket, key, rangeHeader string) (*origin.Object, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.obj, nil
}

func (f *fakeOrigin) Head(ctx context.Context, bucket, key string) (*origin.Object, error) {
	return f.Get(ctx, bucket, key, "")
}

func newTestManager(t *testing.T) *cache.Manager {
	t.Helper()
	m := cache.NewManager(cache.BuildConfig{
		Memory: cache.MemoryConfig{MaxItems: 100, MaxSizeBytes: 1 << 20, CheckPeriod: time.Hour, DefaultTTL: time.Minute},
	})
	require.NoError(t, m.Initialize(context.Background(), "memory"))
	return m
}

func TestServeColdFetchCachesAndMarksMiss(t *testing.T) {
	body := strings.Repeat("x", 1024)
	fake := &fakeOrigin{obj: &origin.Object{
		Body: io.NopCloser(strings.NewReader(body)), ContentType: "video/mp4", ContentLength: int64(len(body)),
	}}
	cacheMgr := newTestManager(t)
	p := New(Config{StreamMaxBytes: 5 << 20, PlaylistMaxBytes: 1 << 20, DefaultTTL: time.Minute, CDNBase: "/cdn"}, cacheMgr, fake)

	req := httptest.NewRequest(http.MethodGet, "/cdn/videos/a.mp4", nil)
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "bucket", "videos/a.mp4", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, body, rec.Body.String())

	key := cache.DeriveKey("bucket", "videos/a.mp4", "")
	assert.True(t, cacheMgr.Exists(context.Background(), key))
}

func TestServeRepeatFetchIsCacheHit(t *testing.T) {
	body := "hello world"
	fake := &fakeOrigin{obj: &origin.Object{Body: io.NopCloser(strings.NewReader(body)), ContentType: "text/plain", ContentLength: int64(len(body))}}
	cacheMgr := newTestManager(t)
	p := New(Config{StreamMaxBytes: 5 << 20, PlaylistMaxBytes: 1 << 20, DefaultTTL: time.Minute, CDNBase: "/cdn"}, cacheMgr, fake)

	req1 := httptest.NewRequest(http.MethodGet, "/cdn/a.txt", nil)
	p.Serve(httptest.NewRecorder(), req1, "bucket", "a.txt", false)

	req2 := httptest.NewRequest(http.MethodGet, "/cdn/a.txt", nil)
	rec2 := httptest.NewRecorder()
	p.Serve(rec2, req2, "bucket", "a.txt", false)

	assert.Equal(t, "HIT", rec2.Header().Get("X-Cache"))
	assert.Equal(t, body, rec2.Body.String())
}

func TestServeRangeRequestNeverPopulatesCache(t *testing.T) {
	fake := &fakeOrigin{obj: &origin.Object{
		Body: io.NopCloser(strings.NewReader("partial")), ContentType: "video/mp4",
		ContentLength: 7, ContentRange: "bytes 0-6/100",
	}}
	cacheMgr := newTestManager(t)
	p := New(Config{StreamMaxBytes: 5 << 20, PlaylistMaxBytes: 1 << 20, DefaultTTL: time.Minute, CDNBase: "/cdn"}, cacheMgr, fake)

	req := httptest.NewRequest(http.MethodGet, "/cdn/a.mp4", nil)
	req.Header.Set("Range", "bytes=0-6")
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "bucket", "a.mp4", false)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	key := cache.DeriveKey("bucket", "a.mp4", "bytes=0-6")
	assert.False(t, cacheMgr.Exists(context.Background(), key))
}

func TestServeHeadMirrorsGetWithoutBody(t *testing.T) {
	fake := &fakeOrigin{obj: &origin.Object{ContentType: "video/mp4", ContentLength: 42}}
	cacheMgr := newTestManager(t)
	p := New(Config{StreamMaxBytes: 5 << 20, PlaylistMaxBytes: 1 << 20, DefaultTTL: time.Minute, CDNBase: "/cdn"}, cacheMgr, fake)

	req := httptest.NewRequest(http.MethodHead, "/cdn/a.mp4", nil)
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "bucket", "a.mp4", true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestServeM3U8RewritesAndCaches(t *testing.T) {
	body := "#EXTM3U\nseg1.ts\n"
	fake := &fakeOrigin{obj: &origin.Object{Body: io.NopCloser(strings.NewReader(body)), ContentType: "application/vnd.apple.mpegurl"}}
	cacheMgr := newTestManager(t)
	p := New(Config{StreamMaxBytes: 5 << 20, PlaylistMaxBytes: 1 << 20, DefaultTTL: time.Minute, CDNBase: "/cdn"}, cacheMgr, fake)

	req := httptest.NewRequest(http.MethodGet, "/cdn/v/index.m3u8", nil)
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "v", "index.m3u8", false)

	assert.Contains(t, rec.Body.String(), "/cdn/v/seg1.ts")
	assert.True(t, cacheMgr.Exists(context.Background(), cache.DeriveKey("v", "index.m3u8", "")))
}

func TestServeOriginNotFoundMapsTo404(t *testing.T) {
	fake := &fakeOrigin{err: &origin.Error{Kind: origin.ErrNoSuchKey, Err: assertErr("missing")}}
	cacheMgr := newTestManager(t)
	p := New(Config{StreamMaxBytes: 5 << 20, PlaylistMaxBytes: 1 << 20, DefaultTTL: time.Minute, CDNBase: "/cdn"}, cacheMgr, fake)

	req := httptest.NewRequest(http.MethodGet, "/cdn/missing.mp4", nil)
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "bucket", "missing.mp4", false)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
