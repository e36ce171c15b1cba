package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"watchlog/config"
	"watchlog/database"
	"watchlog/handlers"
	"watchlog/logger"
	"watchlog/services"
	"watchlog/sources"

	"github.com/go-chi/chi/v5"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Environment, cfg.Debug)

	slog.Info("Initializing watchlog components...")

	if err := database.Connect(cfg); err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.RunMigrations(database.DB); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores
	movies := services.NewMovieStore(database.DB)
	users := services.NewUserStore(database.DB)
	jobs := services.NewJobStore(database.DB)
	cache := services.NewMediaCache(database.DB)

	// Source clients
	tmdb := sources.NewTmdbClient(cfg.TMDBAPIKey, cfg.TMDBBaseURL, cfg.HTTPTimeout)
	trakt := sources.NewTraktClient(cfg.TraktBaseURL, cfg.HTTPTimeout)
	jellyfin := sources.NewJellyfinClient(cfg.HTTPTimeout)
	posters := services.NewPosterCache(database.DB, sources.NewClient("posters", cfg.HTTPTimeout), cfg.TMDBImageBaseURL, cfg.PosterCacheDir)

	importer := services.NewImporter(database.DB, movies, users, jobs, cache,
		tmdb, trakt, jellyfin, posters, cfg.CsvDateFormat, cfg.MetadataRefreshLimit)

	worker := services.NewWorker(jobs, users, cfg.PollInterval)
	importer.RegisterAll(worker)

	go func() {
		if err := worker.RunWorkers(ctx, cfg.WorkerCount); err != nil {
			slog.Error("Worker pool stopped", "error", err)
		}
	}()

	orchestrator := services.NewOrchestrator(jobs)
	jobsHandler := handlers.NewJobsHandler(orchestrator, jobs)

	router := chi.NewRouter()
	jobsHandler.Routes(router)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	slog.Info("Starting server", "port", cfg.ServerPort, "workers", cfg.WorkerCount)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
