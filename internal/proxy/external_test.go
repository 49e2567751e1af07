package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trickster-vod/edge/internal/config"
	"github.com/trickster-vod/edge/internal/playlist"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cacheMgr := newTestManager(t)
	cfg := &config.Config{Server: config.ServerConfig{CDNBase: "cdn", ProxyBase: "trickster"}}
	pipeline := New(Config{StreamMaxBytes: 1 << 20, PlaylistMaxBytes: 1 << 20, CDNBase: "/cdn"}, cacheMgr, &fakeOrigin{})
	return NewHandler(cfg, cacheMgr, pipeline)
}

func TestServeExternalFetchesWrappedAbsoluteURI(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write([]byte("segment-bytes"))
	}))
	defer upstream.Close()

	h := newTestHandler(t)
	rewriter := playlist.New("/cdn", "vod-bucket")
	rewritten := string(rewriter.Rewrite([]byte("#EXTM3U\n"+upstream.URL+"/seg.ts\n"), "master.m3u8"))

	req := httptest.NewRequest(http.MethodGet, firstNonCommentLine(rewritten), nil)
	rec := httptest.NewRecorder()
	h.ServeExternal(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "segment-bytes", rec.Body.String())
	assert.Equal(t, "video/mp2t", rec.Header().Get("Content-Type"))
}

func TestServeExternalRejectsEmptyReference(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/cdn/_external/", nil)
	rec := httptest.NewRecorder()
	h.ServeExternal(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func firstNonCommentLine(playlistBody string) string {
	for _, line := range strings.Split(playlistBody, "\n") {
		if line != "" && line[0] != '#' {
			return line
		}
	}
	return ""
}
