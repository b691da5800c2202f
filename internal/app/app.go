package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/config"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/db"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/metrics"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/model"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/repository"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/service"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/storage"
)

type App struct {
	Cfg     *config.Config
	DB      *sqlx.DB
	Docs    storage.DocumentStore
	Metrics *metrics.Metrics

	Registry        *service.Registry
	DocumentService *service.DocumentService
	CascadeService  *service.CascadeService
	CleanupService  *service.CleanupService
	Sweeper         *service.Sweeper
}

// New opens both stores, runs migrations and wires the services. The
// returned App owns the connections; call Close on shutdown.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	m, err := metrics.New()
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	// Document store
	docs, err := storage.New(ctx, cfg, m)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}

	a := Wire(cfg, database, docs, m)

	if cfg.SweepInterval > 0 {
		a.Sweeper = service.NewSweeper(a.CleanupService, cfg.SweepInterval, cfg.SweepOrphanMinAge)
		a.Sweeper.Start(ctx)
	}

	return a, nil
}

// Wire builds repositories, services and the resource registry on top of
// already opened stores.
func Wire(cfg *config.Config, database *sqlx.DB, docs storage.DocumentStore, m *metrics.Metrics) *App {
	// Repositories
	codeRepository := repository.NewStore[model.Code](database)
	nameRepository := repository.NewStore[model.Name](database)
	rawdataRepository := repository.NewStore[model.Rawdata](database)
	imageRepository := repository.NewImageRepository(database)

	// Services
	registry := service.NewRegistry()
	registry.Register("codes", service.AsResource(service.NewEntityService(codeRepository)))
	registry.Register("names", service.AsResource(service.NewEntityService(nameRepository)))
	registry.Register("rawdata", service.AsResource(service.NewEntityService(rawdataRepository)))
	registry.Register("images", service.AsResource(service.NewEntityService[model.Image](imageRepository)))

	cascadeService := service.NewCascadeService(nameRepository, imageRepository, docs, m, service.CascadeConfig{
		BaseURL:         cfg.APIBaseURL,
		DocumentsPrefix: cfg.DocumentsPrefix,
	})

	return &App{
		Cfg:             cfg,
		DB:              database,
		Docs:            docs,
		Metrics:         m,
		Registry:        registry,
		DocumentService: service.NewDocumentService(docs),
		CascadeService:  cascadeService,
		CleanupService:  service.NewCleanupService(imageRepository, docs, m),
	}
}

func (a *App) Close(ctx context.Context) error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}

	var errs []error
	if a.Docs != nil {
		err := a.Docs.Close(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("document store: %w", err))
		}
	}
	if a.DB != nil {
		err := a.DB.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}

	slog.Info("connections closed")
	return errors.Join(errs...)
}
