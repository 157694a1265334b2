package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"scenes/internal/config"
	"scenes/internal/domain"
	"scenes/internal/entity"
	"scenes/internal/entitydb"
	_ "scenes/internal/feed/sources"
	"scenes/internal/render"
	"scenes/internal/service"
	"scenes/internal/storage"
)

// App wires storage, the entity backend and the services for one process.
type App struct {
	cfg     *config.Config
	db      *storage.DB
	store   entitydb.Store
	emitter service.EventEmitter

	Scenes  *service.SceneService
	Refresh *service.RefreshService
	Feeds   *service.FeedService
}

// Open connects the entity backend and the local SQLite database described
// by cfg. Close releases both.
func Open(ctx context.Context, cfg *config.Config, emitter service.EventEmitter) (*App, error) {
	if emitter == nil {
		emitter = service.NopEmitter{}
	}

	dbCfg, err := cfg.EntityDB()
	if err != nil {
		return nil, err
	}
	store, err := entitydb.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open entity backend: %w", err)
	}
	if err := entitydb.EnsureSchema(ctx, store); err != nil {
		store.Close()
		return nil, fmt.Errorf("entity schema: %w", err)
	}

	db, err := storage.New(cfg.DBPath(), cfg.Watch.Dir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	acc := entity.NewAccessor(store)
	scenes := service.NewSceneService(
		acc,
		storage.NewSceneIndex(db),
		storage.NewHistoryStore(db, cfg.Engine.PersistedHistory),
		render.Default(),
		emitter,
		service.Options{
			Concurrency:  cfg.Engine.Concurrency,
			HistoryLimit: cfg.Engine.HistoryLimit,
			PasteOffset:  cfg.PasteOffset(),
			Policy:       cfg.Load,
			ErrorLimit:   cfg.Engine.ErrorLimit,
		},
	)

	refresh := service.NewRefreshService(scenes, emitter)
	feeds := service.NewFeedService(acc, refresh, emitter)
	if err := feeds.SetJobs(cfg.Feeds); err != nil {
		log.Printf("app: feeds: %v", err)
	}

	return &App{
		cfg:     cfg,
		db:      db,
		store:   store,
		emitter: emitter,
		Scenes:  scenes,
		Refresh: refresh,
		Feeds:   feeds,
	}, nil
}

// Close stops background work and closes the databases.
func (a *App) Close() error {
	a.Refresh.Stop()
	a.Feeds.Stop()
	var errs []error
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close entity backend: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) Config() *config.Config { return a.cfg }

// RefreshJobs converts the configured schedules.
func (a *App) RefreshJobs() []service.RefreshJob {
	jobs := make([]service.RefreshJob, len(a.cfg.Refresh))
	for i, r := range a.cfg.Refresh {
		jobs[i] = service.RefreshJob{Scene: r.Scene, Entity: domain.EntityID(r.Entity), Schedule: r.Schedule}
	}
	return jobs
}

// startBackground schedules refresh and feed jobs and, when enabled, the
// document watcher. A bad schedule is logged; the valid ones still run.
func (a *App) startBackground(ctx context.Context) error {
	if err := a.Refresh.Schedule(ctx, a.RefreshJobs()); err != nil {
		log.Printf("app: refresh schedule: %v", err)
	}
	if err := a.Feeds.Schedule(ctx); err != nil {
		log.Printf("app: feed schedule: %v", err)
	}
	if a.cfg.Watch.Enabled {
		if err := a.Refresh.WatchDocuments(ctx, a.cfg.Watch.Dir); err != nil {
			return fmt.Errorf("watch documents: %w", err)
		}
	}
	return nil
}
