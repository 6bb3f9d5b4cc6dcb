// Package app wires configuration into the store, importer and job handler
// shared by the api, cli and worker binaries.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/momo-tracker/internal/config"
	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/events"
	"github.com/dvloznov/momo-tracker/internal/gcsuploader"
	"github.com/dvloznov/momo-tracker/internal/jobs"
	"github.com/dvloznov/momo-tracker/internal/logger"
	"github.com/dvloznov/momo-tracker/internal/metrics"
	"github.com/dvloznov/momo-tracker/internal/parser"
	"github.com/dvloznov/momo-tracker/internal/pipeline"
	"github.com/dvloznov/momo-tracker/internal/source"
	"github.com/dvloznov/momo-tracker/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// App holds the long-lived dependencies built from a Config.
type App struct {
	Config    *config.Config
	Store     *store.Store
	Assembler *parser.Assembler
	Metrics   *metrics.ImportMetrics
	Publisher events.Publisher

	source  *source.Opener
	fetcher *lazyGCS
	batchMu sync.Mutex
}

// New connects to the database, applies pending migrations and prepares the
// importer dependencies. reg may be nil to skip metrics.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log zerolog.Logger) (*App, error) {
	names := parser.DefaultNameDirectory()
	if cfg.NamesFile != "" {
		var err error
		names, err = parser.LoadNameDirectory(cfg.NamesFile)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		log.Info().Str("path", cfg.NamesFile).Int("names", len(names.Names())).Msg("Loaded name directory")
	}

	s, err := store.Connect(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	applied, err := s.Migrate(logger.WithContext(ctx, log), "momo-tracker")
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("New: %w", err)
	}
	if applied > 0 {
		log.Info().Int("applied", applied).Msg("Applied migrations")
	}

	var m *metrics.ImportMetrics
	if reg != nil {
		m = metrics.NewImportMetrics(reg)
	}

	fetcher := &lazyGCS{}
	return &App{
		Config:    cfg,
		Store:     s,
		Assembler: parser.NewAssembler(names, parser.DefaultClassifier()),
		Metrics:   m,
		Publisher: events.NewPublisher(cfg.RabbitMQURL, cfg.ImportEventsExchange, log),
		source:    source.NewOpener(fetcher),
		fetcher:   fetcher,
	}, nil
}

// Importer returns an importer writing to sink, or to the SQL store when sink is nil.
func (a *App) Importer(sink pipeline.Sink) *pipeline.Importer {
	if sink == nil {
		sink = a.Store
	}
	return pipeline.NewImporter(a.source, sink,
		pipeline.WithAssembler(a.Assembler),
		pipeline.WithSenderAddress(a.Config.SenderAddress),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithPublisher(a.Publisher),
		pipeline.WithBatchLock(&a.batchMu),
	)
}

// Close releases the store, the event publisher and any GCS client.
func (a *App) Close() {
	a.Publisher.Close()
	a.fetcher.Close()
	a.Store.Close()
}

// ImportJobHandler runs import jobs through importer and records the batch
// outcome on the job.
func ImportJobHandler(importer *pipeline.Importer, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.ImportJob) error {
		jobLog := log.With().Str("job_id", job.JobID).Int("attempt", job.RetryCount+1).Logger()
		jobLog.Info().Str("source_uri", job.SourceURI).Str("mode", job.Mode).Msg("Processing import job")

		res, err := importer.Import(ctx, jobLog, pipeline.ImportRequest{
			SourceURI: job.SourceURI,
			Mode:      domain.ImportMode(job.Mode),
		})
		if err != nil {
			jobLog.Error().Err(err).Msg("Import job failed")
			return err
		}

		job.BatchID = res.BatchID
		job.Persisted = res.Persisted
		jobLog.Info().Str("batch_id", res.BatchID).Int("persisted", res.Persisted).Msg("Import job completed")
		return nil
	}
}

// lazyGCS creates the GCS client on the first gs:// fetch so that local-only
// deployments need no cloud credentials.
type lazyGCS struct {
	once sync.Once
	svc  *gcsuploader.GCSStorageService
	err  error
}

func (l *lazyGCS) FetchFromGCS(ctx context.Context, uri string) ([]byte, error) {
	l.once.Do(func() {
		// The client outlives this call, so it must not inherit the request context.
		l.svc, l.err = gcsuploader.NewGCSStorageService(context.Background())
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.svc.FetchFromGCS(ctx, uri)
}

func (l *lazyGCS) Close() {
	if l.svc != nil {
		l.svc.Close()
	}
}
