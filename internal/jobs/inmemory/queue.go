package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/momo-tracker/internal/jobs"
	"github.com/google/uuid"
)

const (
	defaultWorkers    = 1
	defaultMaxRetries = 3
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// This implementation is suitable for single-instance deployments and testing.
type Queue struct {
	jobChan   chan *jobs.ImportJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers int
	backoff func(retry int) time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers. Imports in replace mode
// truncate the sink, so the default is a single worker.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBackoff sets the delay before the given retry attempt.
func WithBackoff(fn func(retry int) time.Duration) Option {
	return func(q *Queue) {
		if fn != nil {
			q.backoff = fn
		}
	}
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishImport blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:   make(chan *jobs.ImportJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   defaultWorkers,
		backoff: func(retry int) time.Duration {
			return time.Duration(retry) * time.Second
		},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishImport enqueues an import job for asynchronous processing.
func (q *Queue) PublishImport(ctx context.Context, job *jobs.ImportJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start starts the workers, each calling handler for the jobs it receives.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.ImportJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	retry := false
	if err != nil {
		job.Error = err.Error()
		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying
			retry = true
		} else {
			job.Status = jobs.JobStatusFailed
		}
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	if retry {
		time.AfterFunc(q.backoff(job.RetryCount), func() { q.requeue(ctx, job) })
	}
}

// requeue publishes a job again for its next attempt. A job that cannot be
// re-published, for example because the queue was stopped during the
// backoff, is marked failed so it does not stay retrying.
func (q *Queue) requeue(ctx context.Context, job *jobs.ImportJob) {
	job.Status = jobs.JobStatusPending
	job.StartedAt = nil
	job.CompletedAt = nil

	err := q.PublishImport(ctx, job)
	if err == nil {
		return
	}

	completedAt := time.Now()
	job.Status = jobs.JobStatusFailed
	job.CompletedAt = &completedAt
	job.Error = fmt.Sprintf("%s (retry not scheduled: %v)", job.Error, err)
	if q.store != nil {
		_ = q.store.SaveJob(context.WithoutCancel(ctx), job)
	}
}

// Stop stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
