package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by a JobStore when no job has the requested ID.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeImport represents a message backup import job.
	JobTypeImport JobType = "import"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ImportJob represents a request to import one message backup.
type ImportJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// SourceURI is a local path or gs:// URI of the backup file.
	SourceURI string `json:"source_uri"`

	// Mode is "replace" or "append".
	Mode string `json:"mode"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// BatchID is the importer batch that last ran for this job.
	BatchID string `json:"batch_id,omitempty"`

	// Persisted is the number of records written by the last successful run.
	Persisted int `json:"persisted"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// GetID returns the unique job identifier.
func (j *ImportJob) GetID() string {
	return j.JobID
}

// GetType returns the job type.
func (j *ImportJob) GetType() JobType {
	return JobTypeImport
}

// GetStatus returns the current job status.
func (j *ImportJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs. Implementations may be in-memory or broker backed.
type Publisher interface {
	PublishImport(ctx context.Context, job *ImportJob) error
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It may record results on the job and should
// return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job *ImportJob) error

// JobStore tracks job state.
type JobStore interface {
	SaveJob(ctx context.Context, job *ImportJob) error
	GetJob(ctx context.Context, jobID string) (*ImportJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*ImportJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// SourceURI filters jobs by source.
	SourceURI string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
