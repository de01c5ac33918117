package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"civicdesk/internal/complaint/handler"
	"civicdesk/internal/complaint/metrics"
	"civicdesk/internal/complaint/service"
	"civicdesk/internal/platform/config"
	"civicdesk/internal/platform/httpserver"
	"civicdesk/internal/platform/logger"
	httpmetrics "civicdesk/internal/platform/metrics"
	"civicdesk/internal/platform/middleware"
	ratelimit "civicdesk/internal/ratelimit/middleware"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/platform/middleware/requesttime"
)

// main wires config, infrastructure and the complaint module, then runs the
// HTTP server and the retention sweeper until a shutdown signal arrives.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("civicdesk stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("civicdesk stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st := buildStores(cfg, deps)
	cache, err := buildCatalog(ctx, cfg, deps, log)
	if err != nil {
		return err
	}
	screener, err := buildScreener(cfg)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer notifier.Close(context.WithoutCancel(ctx))
	locker := buildLocker(cfg, deps)
	svcCfg, err := serviceConfig(cfg)
	if err != nil {
		return err
	}

	svc := service.New(
		st.complaints,
		st.logs,
		st.tx,
		cache,
		screener,
		newRouter(cache),
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithNotifier(notifier),
		service.WithLocker(locker),
		service.WithFingerprinter(newFingerprinter(cfg)),
		service.WithConfig(svcCfg),
	)

	sweeper := buildSweeper(cfg, deps, st, log, m)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(requesttime.Middleware)
	r.Use(httpmetrics.New(reg).Middleware)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.Health(req.Context()); err != nil {
			log.WarnContext(req.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	limiter, localBuckets := buildSubmitLimiter(cfg, deps, log, reg)
	handler.New(svc, log, handler.WithSubmitMiddleware(limiter.PerActor(ratelimit.ScopeSubmit))).Register(r)

	srv := httpserver.New(cfg.Server.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting civicdesk", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		reloadCatalogOnHangup(gctx, cache, log)
		return nil
	})
	if localBuckets != nil {
		g.Go(func() error {
			localBuckets.StartCleanup(gctx, cfg.RateLimit.Window)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// reloadCatalogOnHangup reloads the catalog on every SIGHUP until ctx ends.
func reloadCatalogOnHangup(ctx context.Context, cache catalogReloader, log *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := cache.Reload(ctx); err != nil {
				log.ErrorContext(ctx, "catalog reload failed, keeping previous catalog", "error", err)
			}
		}
	}
}
