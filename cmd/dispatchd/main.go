// README: Entry point; loads config, wires the engine, starts HTTP server and
// background sweepers.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dispatch/internal/archive"
	"dispatch/internal/config"
	transport "dispatch/internal/http"
	"dispatch/internal/infra"
	"dispatch/internal/logx"
	"dispatch/internal/maps"
	"dispatch/internal/metrics"
	"dispatch/internal/modules/agent"
	"dispatch/internal/modules/dispatch"
	"dispatch/internal/modules/ingest"
	"dispatch/internal/modules/rank"
	"dispatch/internal/modules/spatial"
	"dispatch/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logx.NewSlog(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	agents := agent.NewRegistry()
	index := spatial.NewIndex(cfg.Spatial, logger)

	// Archive is optional: without a DSN terminal outcomes stay in memory only.
	var archiveStore archive.Store = archive.NopStore{}
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		archiveStore = archive.NewPGStore(pool)
	}

	// Offer delivery goes over Redis pub/sub when configured; the in-process
	// notifier is for single-node deployments and tests.
	var notifier notify.Notifier = notify.NewMemoryNotifier()
	if cfg.Redis.Addr != "" {
		notifier = notify.NewRedisNotifier(infra.NewRedis(cfg.Redis.Addr))
	}

	var eta rank.ETAProvider
	if cfg.Maps.APIKey != "" {
		svc, err := maps.NewETAService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		eta = svc
	}

	params := dispatch.NewParamStore(cfg.Dispatch)
	coordinator := dispatch.NewCoordinator(dispatch.CoordinatorDeps{
		Store:    dispatch.NewStore(),
		Index:    index,
		Registry: agents,
		Ranker:   rank.NewRanker(eta, m, logger),
		Notifier: notifier,
		Archive:  archiveStore,
		Params:   params,
		Metrics:  m,
		Log:      logger,
	})
	ingestSvc := ingest.NewService(agents, index, cfg.Ingest, m, logger)

	srv := transport.NewServer(transport.ServerDeps{
		Coordinator: coordinator,
		Ingest:      ingestSvc,
		Params:      params,
		Gatherer:    registry,
		Log:         logger,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: srv.Routes()}

	go ingestSvc.Run(ctx)
	go index.RunSweeper(ctx)
	go coordinator.RunSweep(ctx, cfg.Spatial.SweepInterval)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("dispatchd listening", logx.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
