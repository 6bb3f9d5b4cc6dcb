package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/momo-tracker/internal/app"
	"github.com/dvloznov/momo-tracker/internal/config"
	"github.com/dvloznov/momo-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/momo-tracker/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.LoadConfig()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.NewJSON(os.Stdout, "momo-worker", logger.ParseLevel(cfg.LogLevel))

	if cfg.ImportSchedule == "" || cfg.ImportSourceURI == "" {
		log.Fatal().Msg("IMPORT_SCHEDULE and IMPORT_SOURCE_URI are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, prometheus.NewRegistry(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(10, jobStore)

	if err := jobQueue.Start(ctx, app.ImportJobHandler(a.Importer(nil), log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	scheduler, err := app.NewScheduler(cfg.ImportSchedule, cfg.ImportSourceURI, cfg.Mode(), jobQueue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	scheduler.Start()

	log.Info().Str("schedule", cfg.ImportSchedule).Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
