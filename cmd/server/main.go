package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jengzang/routes-backend-go/internal/api"
	"github.com/jengzang/routes-backend-go/internal/config"
	"github.com/jengzang/routes-backend-go/internal/database"
	"github.com/jengzang/routes-backend-go/internal/middleware"
	"github.com/jengzang/routes-backend-go/internal/repository"
	"github.com/jengzang/routes-backend-go/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := database.Open(database.Config{Path: cfg.Database.Path}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.MigrateUp(db); err != nil {
		return err
	}

	repo := repository.NewCacheRepository(db, logger)
	routeService := service.NewRouteService(cfg.Matching, cfg.Cache.Version, repo, logger)
	routeService.BatchSize = cfg.Cache.BatchSize
	routeService.SetTrackCacheSize(cfg.Cache.TrackCacheSize)
	if err := routeService.Load(ctx); err != nil {
		return err
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Requests > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		go limiter.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           api.SetupRouter(cfg, routeService, limiter, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	return routeService.Save(shutdownCtx)
}
