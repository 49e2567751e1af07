// Command vodedge is the edge CDN proxy: it serves VOD assets out of a
// multi-tier cache backed by an S3-compatible origin, rewriting HLS
// playlists to re-anchor segment URIs at the edge.
//
// Startup order:
//
//  1. Config: load the Running Configuration from the environment.
//  2. Logging: install the configured zerolog level/format as default.
//  3. Origin: build the S3 client the fetch pipeline reads through.
//  4. Cache: construct and initialize the Cache Manager (C6) for the
//     configured mode, falling back to Memory on backend init failure.
//  5. Capacity: start the Capacity Manager (C7) watchdog.
//  6. HTTP: wire the fetch pipeline, request handler, and router, then
//     serve until SIGINT/SIGTERM, draining in-flight Hybrid promotions
//     before the process exits.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trickster-vod/edge/internal/cache"
	"github.com/trickster-vod/edge/internal/capacity"
	"github.com/trickster-vod/edge/internal/config"
	"github.com/trickster-vod/edge/internal/logging"
	"github.com/trickster-vod/edge/internal/origin"
	"github.com/trickster-vod/edge/internal/proxy"
	"github.com/trickster-vod/edge/internal/routing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("failed to load configuration", logging.Fields{"error": err.Error()})
	}

	logging.SetDefault(logging.New(cfg.Server.LogLevel, cfg.Server.NodeEnv == "development"))
	logging.Info("starting vodedge", logging.Fields{"cache_mode": string(cfg.Cache.Mode), "cdn_base": cfg.Server.CDNBase})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	originClient, err := origin.New(ctx, cfg.Origin)
	if err != nil {
		logging.Fatal("failed to build origin client", logging.Fields{"error": err.Error()})
	}

	cacheMgr := cache.NewManager(cfg.CacheBuildConfig())
	if err := cacheMgr.Initialize(ctx, string(cfg.Cache.Mode)); err != nil {
		logging.Fatal("failed to initialize cache manager", logging.Fields{"error": err.Error()})
	}
	if cacheMgr.FellBack() {
		logging.Warn("cache manager fell back to memory", logging.Fields{"requested_mode": string(cfg.Cache.Mode)})
	}

	capacityMgr := capacity.New(cacheMgr, time.Duration(cfg.Capacity.PeriodSecs)*time.Second, capacity.Thresholds{
		L1: cfg.Capacity.RedisThreshold,
		L2: cfg.Capacity.CassandraThreshold,
	})
	capacityMgr.Start(ctx)

	pipeline := proxy.New(proxy.Config{
		StreamMaxBytes:   cfg.Cache.StreamMaxBytes,
		PlaylistMaxBytes: cfg.Cache.PlaylistMaxBytes,
		DefaultTTL:       time.Duration(cfg.Cache.TTLSecs) * time.Second,
		CDNBase:          "/" + cfg.Server.CDNBase,
	}, cacheMgr, originClient)
	handler := proxy.NewHandler(cfg, cacheMgr, pipeline)
	router := routing.New(cfg, handler)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Origin.TimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Origin.TimeoutSecs) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("listening", logging.Fields{"addr": addr})
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logging.Info("shutdown signal received", nil)
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("listener failed", logging.Fields{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("graceful shutdown failed", logging.Fields{"error": err.Error()})
	}

	capacityMgr.StopMonitoring()

	if err := cacheMgr.Close(); err != nil {
		logging.Error("error closing cache manager", logging.Fields{"error": err.Error()})
	}

	logging.Info("vodedge stopped", nil)
}
