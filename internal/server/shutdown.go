package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"commerce-insights/internal/config"
)

// ShutdownHook releases one resource after the HTTP server has drained.
type ShutdownHook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// GracefulServer runs the dashboard server until the process is signalled,
// then drains in-flight filter cycles before running the shutdown hooks in
// registration order.
type GracefulServer struct {
	server *http.Server
	logger *slog.Logger
	config *config.Config

	mu    sync.Mutex
	hooks []ShutdownHook
}

func NewGracefulServer(server *http.Server, logger *slog.Logger, config *config.Config) *GracefulServer {
	return &GracefulServer{
		server: server,
		logger: logger,
		config: config,
	}
}

func (gs *GracefulServer) RegisterShutdownHook(name string, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, ShutdownHook{Name: name, Fn: fn})
}

// ListenAndServe serves until SIGINT or SIGTERM.
func (gs *GracefulServer) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return gs.Run(ctx)
}

// Run serves until ctx is done or the server fails. Cancellation starts a
// shutdown bounded by the configured shutdown timeout.
func (gs *GracefulServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", gs.server.Addr, err)
	}

	gs.logger.Info("starting server",
		"addr", ln.Addr().String(),
		"read_timeout", gs.config.Server.ReadTimeout,
		"write_timeout", gs.config.Server.WriteTimeout,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- gs.server.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		gs.logger.Info("shutdown signal received", "cause", context.Cause(ctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), gs.config.Server.ShutdownTimeout)
		defer cancel()

		err := gs.Shutdown(shutdownCtx)
		<-serverErrors
		return err
	}
}

// Shutdown stops accepting requests and waits for in-flight ones, so no
// filter cycle is still writing the selection when the hooks run. Hooks run
// one at a time; once ctx expires the remaining ones are skipped.
func (gs *GracefulServer) Shutdown(ctx context.Context) error {
	start := time.Now()
	gs.logger.Info("starting graceful shutdown", "timeout", gs.config.Server.ShutdownTimeout)

	var errs []error
	if err := gs.server.Shutdown(ctx); err != nil {
		gs.logger.Error("HTTP server shutdown failed", "error", err)
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	} else {
		gs.logger.Info("HTTP server stopped")
	}

	gs.mu.Lock()
	hooks := append([]ShutdownHook(nil), gs.hooks...)
	gs.mu.Unlock()

	for i, hook := range hooks {
		if err := ctx.Err(); err != nil {
			skipped := make([]string, 0, len(hooks)-i)
			for _, h := range hooks[i:] {
				skipped = append(skipped, h.Name)
			}
			gs.logger.Warn("shutdown timeout exceeded, skipping hooks", "hooks", skipped)
			errs = append(errs, fmt.Errorf("shutdown hooks skipped %v: %w", skipped, err))
			break
		}

		hookStart := time.Now()
		if err := hook.Fn(ctx); err != nil {
			gs.logger.Error("shutdown hook failed", "hook", hook.Name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %s: %w", hook.Name, err))
			continue
		}
		gs.logger.Debug("shutdown hook completed", "hook", hook.Name, "duration", time.Since(hookStart))
	}

	gs.logger.Info("graceful shutdown completed", "duration", time.Since(start))
	return errors.Join(errs...)
}
