package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/momo-tracker/internal/api"
	"github.com/dvloznov/momo-tracker/internal/api/handlers"
	"github.com/dvloznov/momo-tracker/internal/app"
	"github.com/dvloznov/momo-tracker/internal/config"
	"github.com/dvloznov/momo-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/momo-tracker/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.LoadConfig()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.NewJSON(os.Stdout, "momo-api", logger.ParseLevel(cfg.LogLevel))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx := context.Background()
	a, err := app.New(ctx, cfg, reg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	importer := a.Importer(nil)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, app.ImportJobHandler(importer, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	router := api.NewRouter(api.Handlers{
		Transactions: handlers.NewTransactionsHandler(a.Store, log),
		Upload:       handlers.NewUploadHandler(importer, cfg.UploadDir, cfg.MaxContentLength, log),
		Jobs:         handlers.NewJobsHandler(jobQueue, jobStore, cfg.Mode(), log),
		DB:           a.Store,
		Metrics:      reg,
	}, log)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("driver", cfg.DatabaseDriver).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop accepting jobs and let in-flight imports finish before the store closes.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
