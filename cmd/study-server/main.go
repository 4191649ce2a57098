package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/studyindex/internal/app"
	"github.com/cognicore/studyindex/internal/httpapi"
	"github.com/cognicore/studyindex/internal/logging"
	"github.com/cognicore/studyindex/pkg/studyindex/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var (
		configPath = flag.String("config", "", "Config file (optional)")
		addr       = flag.String("addr", "", "Listen address (overrides server.addr)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logger, err := logging.NewLogger(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*http.Server, func(), error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	router := httpapi.NewRouter(logger, a.Metrics.Handler(),
		httpapi.NewStudyHandler(a.Searcher()),
		httpapi.NewCatalogHandler(a.Catalog))
	cleanup := func() {
		if err := a.Close(); err != nil {
			logger.Warn("close backends", zap.Error(err))
		}
	}
	return httpapi.NewServer(cfg.Server.Addr, router), cleanup, nil
}

// serve runs until ctx is cancelled, then shuts down gracefully.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	srv, cleanup, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	logger.Info("server exited gracefully")
	return nil
}
