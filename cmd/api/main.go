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

	"github.com/kitade/kita-jobs/internal/api"
	"github.com/kitade/kita-jobs/internal/config"
	"github.com/kitade/kita-jobs/internal/logger"
	"github.com/kitade/kita-jobs/internal/repository"
	"github.com/kitade/kita-jobs/internal/service"
	"github.com/kitade/kita-jobs/internal/source"
	"github.com/kitade/kita-jobs/internal/source/kitadir"
	"github.com/kitade/kita-jobs/internal/source/wordpress"
	"github.com/kitade/kita-jobs/internal/storage"
)

func main() {
	appLogger := logger.New(logger.ConfigFromEnv("kita-import"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH overrides the config search path in deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	deps := api.Dependencies{Logger: appLogger}
	var (
		kitaStore      service.KitaStore
		knowledgeStore service.KnowledgeStore
		runRecorder    service.RunRecorder
	)
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to access database handle")
		}
		defer sqlDB.Close()

		kitaRepo := repository.NewKitaRepository(db)
		knowledgeRepo := repository.NewKnowledgeRepository(db)
		kitaStore, knowledgeStore = kitaRepo, knowledgeRepo
		runRepo := repository.NewImportRunRepository(db)
		runRecorder = runRepo
		deps.Kitas, deps.Posts, deps.Runs, deps.DB = kitaRepo, knowledgeRepo, runRepo, sqlDB
	} else {
		appLogger.Warn("No database configured, only dry-run imports are available")
	}

	ctx := appLogger.WithContext(context.Background())

	var archive kitadir.PageArchiver
	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		archive = storage.NewPageArchive(objectStorage, storage.ArchiveOptions{
			Prefix:       cfg.Storage.Prefix,
			CacheControl: cfg.Storage.CacheControl,
			SkipExisting: cfg.Storage.SkipExisting,
		})
		appLogger.WithField("bucket", cfg.Storage.Bucket).Info("Raw page archive enabled")
	}

	directoryFetcher := source.NewFetcher(source.FetcherConfig{
		UserAgent:         cfg.Scraper.UserAgent,
		Timeout:           cfg.Scraper.Timeout,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		Burst:             cfg.Scraper.Burst,
		RetryCount:        cfg.Scraper.RetryCount,
	})
	wordpressFetcher := source.NewFetcher(source.FetcherConfig{
		UserAgent:         cfg.Scraper.UserAgent,
		Timeout:           cfg.WordPress.Timeout,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		Burst:             cfg.Scraper.Burst,
		RetryCount:        cfg.Scraper.RetryCount,
	})

	sel := cfg.Scraper.Selectors
	directory := kitadir.NewAdapter(directoryFetcher, kitadir.Selectors{
		BezirkLinks: sel.BezirkLinks,
		KitaLinks:   sel.KitaLinks,
		NextPage:    sel.NextPage,
		DetailName:  sel.DetailName,
		DetailRoot:  sel.DetailRoot,
	}, cfg.Scraper.MaxListingPages, archive)
	blog := wordpress.NewAdapter(wordpressFetcher, cfg.WordPress.BaseURL)

	// jobs outlive the request that started them; cancelled on shutdown
	jobsCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	registry := service.NewJobRegistry(cfg.Import.MaxFinishedJobs)
	deps.Registry = registry
	deps.Imports = service.NewImportService(service.ImportConfig{
		BaseContext: jobsCtx,
		Registry:    registry,
		Source:      directory,
		Store:       kitaStore,
		Runs:        runRecorder,
		Logger:      appLogger,
	})
	deps.Knowledge = service.NewKnowledgeService(service.KnowledgeConfig{
		BaseContext: jobsCtx,
		Registry:    registry,
		Source:      blog,
		Store:       knowledgeStore,
		Runs:        runRecorder,
		Logger:      appLogger,
	})

	router := api.SetupRouter(deps, &cfg.Server)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	cancelJobs()

	jobsWaitCtx, cancelWait := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelWait()
	if err := registry.Wait(jobsWaitCtx); err != nil {
		appLogger.WithError(err).Warn("Import jobs did not stop in time")
	}

	appLogger.Info("Server exited")
}
