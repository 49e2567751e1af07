package proxy

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trickster-vod/edge/internal/apierror"
	"github.com/trickster-vod/edge/internal/cache"
	"github.com/trickster-vod/edge/internal/config"
)

// Handler is the HTTP-facing Request Handler (C10): it parses the object
// path, delegates to the fetch Pipeline, and serves the admin surface
// (self-description, status, cache stats/clear/switch/health).
type Handler struct {
	pipeline       *Pipeline
	cacheMgr       *cache.Manager
	cfg            *config.Config
	startedAt      time.Time
	instanceID     string
	externalClient *http.Client
}

// NewHandler wires a Handler from the process configuration.
func NewHandler(cfg *config.Config, cacheMgr *cache.Manager, pipeline *Pipeline) *Handler {
	return &Handler{
		pipeline:   pipeline,
		cacheMgr:   cacheMgr,
		cfg:        cfg,
		startedAt:  time.Now(),
		instanceID: uuid.NewString(),
		externalClient: &http.Client{
			Timeout: time.Duration(cfg.Origin.TimeoutSecs) * time.Second,
		},
	}
}

// ServeObject handles GET/HEAD on /<cdn-base>/*, implementing the
// path→(bucket,key) parsing rule of §4.10.
func (h *Handler) ServeObject(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/"+h.cfg.Server.CDNBase)
	bucket, key, ok := parsePath(trimmed, h.cfg.Origin.DefaultBucket)
	if !ok {
		apierror.Write(w, apierror.New(apierror.KindBadRequest, "empty object path"))
		return
	}
	h.pipeline.Serve(w, r, bucket, key, r.Method == http.MethodHead)
}

// SelfDescription handles GET / per §6.
func (h *Handler) SelfDescription(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       "vodedge",
		"cdnBase":    h.cfg.Server.CDNBase,
		"proxyBase":  h.cfg.Server.ProxyBase,
		"instanceId": h.instanceID,
	})
}

// Status handles GET /<proxy-base>/status per §6.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptimeSeconds": time.Since(h.startedAt).Seconds(),
		"mode":          h.cacheMgr.Mode(),
		"fellBack":      h.cacheMgr.FellBack(),
	})
}

// CacheStats handles GET /<proxy-base>/cache/stats per §6.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cacheMgr.GetStats(r.Context()))
}

// CacheClear handles POST /<proxy-base>/cache/clear per §6.
func (h *Handler) CacheClear(w http.ResponseWriter, r *http.Request) {
	ok := h.cacheMgr.Clear(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": ok})
}

// CacheHealth handles GET /<proxy-base>/cache/health per §6.
func (h *Handler) CacheHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy":     h.cacheMgr.IsHealthy(r.Context()),
		"mode":        h.cacheMgr.Mode(),
		"initialized": h.cacheMgr.Backend() != nil,
	})
}

type switchRequest struct {
	Mode string `json:"mode"`
}

// CacheSwitch handles POST /<proxy-base>/cache/switch per §6, scenario 6.
func (h *Handler) CacheSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindBadRequest, "invalid switch request body", err))
		return
	}
	mode := config.CacheMode(strings.ToLower(req.Mode))
	if !mode.IsValid() {
		apierror.Write(w, apierror.New(apierror.KindBadRequest, "unknown cache mode"))
		return
	}
	if err := h.cacheMgr.SwitchBackend(r.Context(), string(mode)); err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindBadRequest, "cache switch failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": h.cacheMgr.Mode()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
