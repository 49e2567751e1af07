// Package proxy implements the streaming Object Fetch Pipeline (C8) and
// the HTTP Request Handler (C10): cache lookup, range-aware origin fetch,
// tee-into-cache for small un-ranged objects, buffer-rewrite-cache for
// M3U8 playlists, and response header composition.
package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/trickster-vod/edge/internal/apierror"
	"github.com/trickster-vod/edge/internal/cache"
	"github.com/trickster-vod/edge/internal/logging"
	"github.com/trickster-vod/edge/internal/metrics"
	"github.com/trickster-vod/edge/internal/mimetype"
	"github.com/trickster-vod/edge/internal/origin"
	"github.com/trickster-vod/edge/internal/playlist"
)

// Config bounds how much the pipeline will buffer/tee into cache.
type Config struct {
	// StreamMaxBytes is S_MAX: the largest un-ranged object teed into cache
	// while streaming.
	StreamMaxBytes int64
	// PlaylistMaxBytes bounds rewritten M3U8 bodies admitted to cache.
	PlaylistMaxBytes int64
	// DefaultTTL is applied to cache-fills that don't carry an explicit one.
	DefaultTTL time.Duration
	// CDNBase is the path prefix object URLs are served under.
	CDNBase string
}

// Pipeline wires the cache, origin client, and playlist rewriter together
// to serve a single object GET/HEAD.
type Pipeline struct {
	cfg    Config
	cache  *cache.Manager
	origin origin.Fetcher
}

// New constructs a fetch Pipeline.
func New(cfg Config, cacheMgr *cache.Manager, originClient origin.Fetcher) *Pipeline {
	return &Pipeline{cfg: cfg, cache: cacheMgr, origin: originClient}
}

// Serve handles a single object request per §4.8's state machine. head
// suppresses the body write (C10's HEAD mirror of GET).
func (p *Pipeline) Serve(w http.ResponseWriter, r *http.Request, bucket, key string, head bool) {
	start := time.Now()
	rangeHeader := r.Header.Get("Range")
	cacheKey := cache.DeriveKey(bucket, key, rangeHeader)

	if rangeHeader == "" {
		if item := p.cache.Get(r.Context(), cacheKey); item != nil {
			p.writeFromCache(w, item, head)
			metrics.RecordRequest(r.Method, "200", time.Since(start))
			return
		}
	}

	obj, err := p.fetchOrigin(r.Context(), bucket, key, rangeHeader, head)
	if err != nil {
		p.writeOriginError(w, r, err, start)
		return
	}
	if obj.Body != nil {
		defer obj.Body.Close()
	}

	if obj.Body == nil && !head {
		apierror.Write(w, apierror.New(apierror.KindNotFound, "origin returned no body"))
		metrics.RecordRequest(r.Method, "404", time.Since(start))
		return
	}

	if head {
		p.writeHeadHeaders(w, obj, key)
		metrics.RecordRequest(r.Method, "200", time.Since(start))
		return
	}

	if playlist.IsPlaylist(key) || isHLSContentType(obj.ContentType) {
		p.servePlaylist(w, r, obj, bucket, key, cacheKey, start)
		return
	}

	p.serveStream(w, r, obj, key, rangeHeader, cacheKey, start)
}

// fetchOrigin dispatches to HeadObject or GetObject per §4.10's HEAD mirror.
func (p *Pipeline) fetchOrigin(ctx context.Context, bucket, key, rangeHeader string, head bool) (*origin.Object, error) {
	if head {
		return p.origin.Head(ctx, bucket, key)
	}
	return p.origin.Get(ctx, bucket, key, rangeHeader)
}

// writeFromCache writes a cache hit per §4.8 step 2.
func (p *Pipeline) writeFromCache(w http.ResponseWriter, item *cache.Item, head bool) {
	h := w.Header()
	if item.ContentType != "" {
		h.Set("Content-Type", item.ContentType)
	}
	h.Set("Content-Length", strconv.FormatInt(item.Size, 10))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "public, max-age=3600")
	h.Set("X-Cache", "HIT")
	if item.ETag != "" {
		h.Set("ETag", item.ETag)
	}
	if !item.LastModified.IsZero() {
		h.Set("Last-Modified", item.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if !head {
		_, _ = w.Write(item.Data)
	}
}

func (p *Pipeline) writeHeadHeaders(w http.ResponseWriter, obj *origin.Object, key string) {
	h := w.Header()
	ct := mimetype.Resolve(obj.ContentType, key, nil)
	h.Set("Content-Type", ct)
	h.Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "public, max-age=3600")
	h.Set("X-Cache", "MISS")
	if obj.ETag != "" {
		h.Set("ETag", obj.ETag)
	}
	if !obj.LastModified.IsZero() {
		h.Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
}

// servePlaylist implements §4.8 step 6 / §4.9: buffer, rewrite, respond,
// cache if small enough.
func (p *Pipeline) servePlaylist(w http.ResponseWriter, r *http.Request, obj *origin.Object, bucket, key, cacheKey string, start time.Time) {
	body, err := io.ReadAll(obj.Body)
	if err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindRewriteFailure, "failed to buffer playlist body", err))
		metrics.RecordRequest(r.Method, "500", time.Since(start))
		return
	}

	rewriter := playlist.New(p.cfg.CDNBase, bucket)
	rewritten := rewriter.Rewrite(body, key)

	h := w.Header()
	h.Set("Content-Type", "application/vnd.apple.mpegurl")
	h.Set("Content-Length", strconv.Itoa(len(rewritten)))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "public, max-age=3600")
	h.Set("X-Cache", "MISS")
	if obj.ETag != "" {
		h.Set("ETag", obj.ETag)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rewritten)

	if int64(len(rewritten)) <= p.cfg.PlaylistMaxBytes {
		p.cache.Set(r.Context(), cacheKey, rewritten, cache.SetOptions{
			TTL: p.cfg.DefaultTTL, ContentType: "application/vnd.apple.mpegurl", ETag: obj.ETag, LastModified: obj.LastModified,
		})
	}
	metrics.RecordRequest(r.Method, "200", time.Since(start))
}

// serveStream implements §4.8 step 5: pipe origin bytes to the client,
// teeing into a bounded buffer for a cache-fill when the request is
// un-ranged and the object is small enough.
func (p *Pipeline) serveStream(w http.ResponseWriter, r *http.Request, obj *origin.Object, key, rangeHeader, cacheKey string, start time.Time) {
	status := http.StatusOK
	if obj.ContentRange != "" {
		status = http.StatusPartialContent
	}

	ct := mimetype.Resolve(obj.ContentType, key, nil)
	h := w.Header()
	h.Set("Content-Type", ct)
	if obj.ContentLength > 0 {
		h.Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "public, max-age=3600")
	h.Set("X-Cache", "MISS")
	if obj.ETag != "" {
		h.Set("ETag", obj.ETag)
	}
	if !obj.LastModified.IsZero() {
		h.Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	if obj.ContentRange != "" {
		h.Set("Content-Range", obj.ContentRange)
	}
	w.WriteHeader(status)

	teeing := rangeHeader == "" && obj.ContentLength >= 0 && obj.ContentLength <= p.cfg.StreamMaxBytes
	if !teeing {
		_, _ = io.Copy(w, obj.Body)
		metrics.RecordRequest(r.Method, strconv.Itoa(status), time.Since(start))
		return
	}

	var buf bytes.Buffer
	mw := io.MultiWriter(w, &buf)
	n, copyErr := io.CopyN(mw, obj.Body, p.cfg.StreamMaxBytes+1)
	if copyErr == io.EOF || n <= p.cfg.StreamMaxBytes {
		if n > 0 || copyErr == io.EOF {
			p.cache.Set(r.Context(), cacheKey, buf.Bytes(), cache.SetOptions{
				TTL: p.cfg.DefaultTTL, ContentType: ct, ETag: obj.ETag, LastModified: obj.LastModified,
			})
		}
	} else {
		// buffer exceeded S_MAX (advertised length was wrong); discard and
		// continue streaming uncached.
		_, _ = io.Copy(w, obj.Body)
	}
	metrics.RecordRequest(r.Method, strconv.Itoa(status), time.Since(start))
}

func (p *Pipeline) writeOriginError(w http.ResponseWriter, r *http.Request, err error, start time.Time) {
	kind := apierror.KindOriginFailure
	switch origin.Classify(err) {
	case origin.ErrNoSuchKey, origin.ErrNoSuchBucket:
		kind = apierror.KindNotFound
	case origin.ErrAccessDenied:
		kind = apierror.KindForbidden
	}
	logging.Debug("origin fetch failed", logging.Fields{"error": err.Error()})
	apErr := apierror.Wrap(kind, "origin fetch failed", err)
	apierror.Write(w, apErr)
	metrics.RecordRequest(r.Method, strconv.Itoa(apErr.Status()), time.Since(start))
}

func isHLSContentType(ct string) bool {
	return ct == "application/vnd.apple.mpegurl" || ct == "application/x-mpegURL"
}
