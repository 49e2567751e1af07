package proxy

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trickster-vod/edge/internal/apierror"
	"github.com/trickster-vod/edge/internal/logging"
	"github.com/trickster-vod/edge/internal/metrics"
	"github.com/trickster-vod/edge/internal/playlist"
)

// ServeExternal handles GET/HEAD on CDNBase/_external/<encoded-uri>: the
// playlist rewriter (C9) wraps absolute foreign references through this
// route instead of handing the client a bare origin URL, so every byte a
// rewritten playlist references still flows through the edge.
func (h *Handler) ServeExternal(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	prefix := "/" + h.cfg.Server.CDNBase + "/" + playlist.ExternalPrefix + "/"
	encoded := strings.TrimPrefix(r.URL.EscapedPath(), prefix)

	target, ok := playlist.DecodeExternal(encoded)
	if !ok || target == "" {
		apierror.Write(w, apierror.New(apierror.KindBadRequest, "invalid external reference"))
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, nil)
	if err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindBadRequest, "malformed external reference", err))
		return
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := h.externalClient.Do(req)
	if err != nil {
		logging.Debug("external fetch failed", logging.Fields{"url": target, "error": err.Error()})
		apierror.Write(w, apierror.Wrap(apierror.KindOriginFailure, "external fetch failed", err))
		metrics.RecordRequest(r.Method, "502", time.Since(start))
		return
	}
	defer resp.Body.Close()

	hdr := w.Header()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		hdr.Set("Content-Type", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		hdr.Set("Content-Length", cl)
	}
	hdr.Set("Accept-Ranges", "bytes")
	hdr.Set("X-Cache", "BYPASS")
	w.WriteHeader(resp.StatusCode)
	if r.Method != http.MethodHead {
		_, _ = io.Copy(w, resp.Body)
	}
	metrics.RecordRequest(r.Method, strconv.Itoa(resp.StatusCode), time.Since(start))
}
