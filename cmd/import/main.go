// Command import loads GPX files into the route cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jengzang/routes-backend-go/internal/analysis"
	"github.com/jengzang/routes-backend-go/internal/config"
	"github.com/jengzang/routes-backend-go/internal/database"
	"github.com/jengzang/routes-backend-go/internal/grouping"
	"github.com/jengzang/routes-backend-go/internal/ingest"
	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/repository"
	"github.com/jengzang/routes-backend-go/internal/service"
	"go.uber.org/zap"
)

func main() {
	dir := flag.String("dir", ".", "Directory to scan for .gpx files")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := cfg.Log.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *dir, logger); err != nil {
		logger.Fatal("Import failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, dir string, logger *zap.Logger) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.gpx"))
	if err != nil {
		return err
	}

	var activities []models.Activity
	for _, f := range files {
		acts, err := ingest.LoadFile(f)
		if err != nil {
			logger.Warn("Skipping GPX file", zap.String("file", f), zap.Error(err))
			continue
		}
		activities = append(activities, acts...)
	}
	logger.Info("GPX files read", zap.Int("files", len(files)), zap.Int("activities", len(activities)))

	db, err := database.Open(database.Config{Path: cfg.Database.Path}, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.MigrateUp(db); err != nil {
		return err
	}

	routeService := service.NewRouteService(cfg.Matching, cfg.Cache.Version, repository.NewCacheRepository(db, logger), logger)
	routeService.BatchSize = cfg.Cache.BatchSize
	if err := routeService.Load(ctx); err != nil {
		return err
	}

	res, runErr := routeService.ProcessActivities(ctx, activities, func(p analysis.Progress) {
		fmt.Fprintf(os.Stderr, "\r%d/%d activities (%.0f%%, eta %ds)", p.Processed, p.Total, p.Percent, p.ETASeconds)
	})
	fmt.Fprintln(os.Stderr)

	counts := make(map[grouping.Outcome]int)
	for _, r := range res.Results {
		counts[r.Outcome]++
	}
	logger.Info("Import finished",
		zap.Int("grouped", counts[grouping.OutcomeGrouped]),
		zap.Int("new_routes", counts[grouping.OutcomeNewGroup]),
		zap.Int("no_match", counts[grouping.OutcomeNoMatch]),
		zap.Int("already_processed", counts[grouping.OutcomeDuplicate]),
		zap.Int("failed", res.Progress.Failed))

	// a cancelled import still saves what it finished
	if err := routeService.Save(context.Background()); err != nil {
		return err
	}
	return runErr
}
