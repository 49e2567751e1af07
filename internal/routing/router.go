// Package routing wires the HTTP surface (§6) onto a gorilla/mux router:
// object serving under the CDN base, and the proxy admin endpoints
// (status, cache stats/clear/switch/health) under the proxy base.
package routing

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/trickster-vod/edge/internal/config"
	"github.com/trickster-vod/edge/internal/playlist"
	"github.com/trickster-vod/edge/internal/proxy"
	"github.com/trickster-vod/edge/internal/util/middleware"
)

// New builds the process's top-level HTTP handler: a mux.Router carrying
// every route in §6, wrapped in gzip compression and permissive CORS —
// the same middleware shape the teacher layers around its origin routes.
func New(cfg *config.Config, h *proxy.Handler) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging())

	r.HandleFunc("/", h.SelfDescription).Methods(http.MethodGet)

	proxyBase := "/" + cfg.Server.ProxyBase
	r.HandleFunc(proxyBase+"/status", h.Status).Methods(http.MethodGet)
	r.HandleFunc(proxyBase+"/cache/stats", h.CacheStats).Methods(http.MethodGet)
	r.HandleFunc(proxyBase+"/cache/clear", h.CacheClear).Methods(http.MethodPost)
	r.HandleFunc(proxyBase+"/cache/switch", h.CacheSwitch).Methods(http.MethodPost)
	r.HandleFunc(proxyBase+"/cache/health", h.CacheHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	cdnBase := "/" + cfg.Server.CDNBase
	r.PathPrefix(cdnBase + "/" + playlist.ExternalPrefix + "/").HandlerFunc(h.ServeExternal).Methods(http.MethodGet, http.MethodHead)
	r.PathPrefix(cdnBase).HandlerFunc(h.ServeObject).Methods(http.MethodGet, http.MethodHead)

	corsMW := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost},
	})

	return corsMW.Handler(handlers.CompressHandler(r))
}
