package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/jobs"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler enqueues an import of one source on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	publisher jobs.Publisher
	sourceURI string
	mode      domain.ImportMode
	log       zerolog.Logger
}

// NewScheduler validates schedule (standard five-field cron syntax or
// descriptors such as @hourly) and registers the import.
func NewScheduler(schedule, sourceURI string, mode domain.ImportMode, publisher jobs.Publisher, log zerolog.Logger) (*Scheduler, error) {
	if sourceURI == "" {
		return nil, fmt.Errorf("NewScheduler: source URI is required")
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("NewScheduler: unknown import mode %q", mode)
	}

	cl := cronLogger{log: log}
	s := &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		publisher: publisher,
		sourceURI: sourceURI,
		mode:      mode,
		log:       log,
	}

	if _, err := s.cron.AddFunc(schedule, s.enqueue); err != nil {
		return nil, fmt.Errorf("NewScheduler: invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.log.Info().Str("source_uri", s.sourceURI).Str("mode", string(s.mode)).Msg("Starting import scheduler")
	s.cron.Start()
}

// Stop halts the schedule; the returned context is done once a running
// enqueue has returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) enqueue() {
	job := &jobs.ImportJob{SourceURI: s.sourceURI, Mode: string(s.mode)}
	if err := s.publisher.PublishImport(context.Background(), job); err != nil {
		s.log.Error().Err(err).Str("source_uri", s.sourceURI).Msg("Failed to enqueue scheduled import")
		return
	}
	s.log.Info().Str("job_id", job.JobID).Msg("Scheduled import enqueued")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
