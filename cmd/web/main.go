package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"commerce-insights/internal/config"
	"commerce-insights/internal/middleware"
	"commerce-insights/internal/observability"
	"commerce-insights/internal/server"
	"commerce-insights/internal/services"
	"commerce-insights/internal/storage"
	"commerce-insights/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	cacheMaxAge   = "public, max-age=300"
)

// Template handler functions that can access the template functions
func handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", cacheMaxAge)
	if err := templates.Dashboard().Render(ctx, w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

// newAnalytics builds the session and loads the data file. A failed load is
// logged and kept as the session's error state; the server still starts so
// the dashboard can report it.
func newAnalytics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services.Analytics, error) {
	selection, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	opts := services.AnalyticsOptions{
		Engine:    services.EngineOptions(cfg.Engine),
		Selection: selection,
		Logger:    logger,
	}
	if cfg.Data.CacheEnabled {
		opts.Cache = services.NewFactCache(cfg.Data.CacheDir)
	}
	analytics := services.NewAnalytics(opts)

	loadCtx, cancel := context.WithTimeout(ctx, cfg.Data.LoadTimeout)
	defer cancel()

	start := time.Now()
	if err := analytics.LoadFromFile(loadCtx, cfg.Data.File); err != nil {
		logger.Error("failed to load dashboard data", "file", cfg.Data.File, "error", err)
		return analytics, nil
	}
	logger.Info("dashboard data loaded successfully", "duration", time.Since(start))
	return analytics, nil
}

func newHandler(cfg *config.Config, analytics *services.Analytics, logger *slog.Logger) http.Handler {
	templateHandlers := &server.TemplateHandlers{
		Dashboard: handleDashboard,
	}

	srv := server.NewServer(analytics, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.Metrics(),
	)

	return middlewareChain(srv)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	analytics, err := newAnalytics(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open selection store", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(cfg, analytics, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook("analytics", analytics.Shutdown)

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
