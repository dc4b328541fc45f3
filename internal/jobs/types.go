package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeSyncNotion mirrors debts (and exported transactions) into Notion.
	JobTypeSyncNotion JobType = "sync_notion"
	// JobTypeExportBigQuery snapshots both tables into BigQuery.
	JobTypeExportBigQuery JobType = "export_bigquery"
	// JobTypeBackupTables writes CSV backups of both tables to Cloud Storage.
	JobTypeBackupTables JobType = "backup_tables"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeSyncNotion, JobTypeExportBigQuery, JobTypeBackupTables:
		return true
	}
	return false
}

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

// Params are the optional knobs of a job. Unused fields are ignored by other job types.
type Params struct {
	// DryRun makes sync_notion report without writing.
	DryRun bool `json:"dry_run,omitempty"`

	// Days bounds the transaction window of sync_notion; zero uses the configured default.
	Days int `json:"days,omitempty"`
}

// Job is one unit of background work. The queue stamps StartedAt and CompletedAt
// as a run begins and ends.
type Job struct {
	JobID  string    `json:"job_id"`
	Type   JobType   `json:"type"`
	Params Params    `json:"params"`
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is the handler's summary on success, Error the last failure.
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// RetryCount counts re-publications; the job fails for good once it
	// reaches MaxRetries.
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish enqueues a job, assigning its ID when empty.
	Publish(ctx context.Context, job *Job) error

	// Close closes the publisher and releases resources.
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

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job *Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID. A missing job is domain.ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// ListJobs retrieves jobs, newest first, with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter narrows ListJobs. Zero values match everything; Limit 0 means no limit.
type JobFilter struct {
	Type   JobType
	Status JobStatus
	Limit  int
	Offset int
}
