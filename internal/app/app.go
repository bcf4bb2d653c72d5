// Package app wires the engine components from configuration. Every
// entrypoint builds the same graph so the HTTP, admin and CLI surfaces share
// one set of services.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/cache"
	"github.com/andresuchdata/autopo-engine/internal/config"
	"github.com/andresuchdata/autopo-engine/internal/events"
	"github.com/andresuchdata/autopo-engine/internal/pipeline"
	"github.com/andresuchdata/autopo-engine/internal/reasoning"
	"github.com/andresuchdata/autopo-engine/internal/repository/postgres"
	"github.com/andresuchdata/autopo-engine/internal/service"
	"github.com/andresuchdata/autopo-engine/internal/storage"
	"github.com/rs/zerolog/log"
)

type App struct {
	Config *config.Config
	DB     *postgres.DB
	Caches *cache.Caches
	Cart   events.CartQueue

	Recommendations *service.RecommendationService
	Feedback        *service.FeedbackService
	Outcomes        *service.OutcomeService
	Reports         *service.ReportService
	Integrity       *service.IntegrityService
}

// Build connects every backing service and constructs the engine services.
// Callers must Close the returned App.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &App{Config: cfg, DB: db}

	a.Caches, err = cache.New(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	a.Cart, err = events.NewCartQueue(cfg.Events)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize cart queue: %w", err)
	}

	narrator, err := reasoning.New(ctx, cfg.Reasoning)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize reasoning client: %w", err)
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}

	store := postgres.NewStore(db)
	opts := service.OptionsFromConfig(cfg.Engine)

	a.Recommendations, err = service.NewRecommendationService(store, narrator, a.Caches, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Feedback = service.NewFeedbackService(store.Recommendations, a.Cart, a.Caches, opts)
	a.Outcomes = service.NewOutcomeService(store, a.Caches, opts)
	a.Reports = service.NewReportService(store, objects, a.Caches, opts)
	a.Integrity = service.NewIntegrityService(store, objects, a.Caches, opts)

	return a, nil
}

// VerifyScheduler returns the periodic outcome verification loop, or nil
// when no interval or stores are configured.
func (a *App) VerifyScheduler() *pipeline.Scheduler {
	engine := a.Config.Engine
	if engine.ScheduleInterval <= 0 || len(engine.ScheduledStores) == 0 {
		return nil
	}
	return pipeline.NewScheduler("verify", engine.ScheduleInterval, engine.ScheduledStores,
		pipeline.NewOrchestrator(engine.StoreConcurrency),
		func(ctx context.Context, storeID int64) error {
			_, err := a.Outcomes.VerifyOutcomes(ctx, storeID, time.Time{})
			return err
		})
}

// ForStores runs task for each store with the configured store concurrency.
func (a *App) ForStores(ctx context.Context, storeIDs []int64, task pipeline.StoreTask) error {
	return pipeline.NewOrchestrator(a.Config.Engine.StoreConcurrency).Run(ctx, storeIDs, task)
}

func (a *App) Close() {
	if a.Cart != nil {
		a.Cart.Close()
	}
	if a.Caches != nil {
		if err := a.Caches.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close cache client")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
}
