// Package jobs defines the queue abstraction the async ingestion endpoints
// use to hand work off from the HTTP request path to background workers.
// Generalized from the teacher's single ParseDocumentJob into two concrete
// job types sharing one Job interface, since spec.md §6 exposes both a
// single-file and a batch ingestion endpoint.
package jobs

import (
	"context"
	"time"
)

// JobType identifies which concrete job a Job value carries.
type JobType string

const (
	JobTypeIngestFile  JobType = "ingest_file"
	JobTypeIngestBatch JobType = "ingest_batch"
)

// JobStatus tracks a job's lifecycle.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// Job is the common interface every queued unit of work satisfies.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
	GetBatchID() string
	SetStatus(status JobStatus)
	SetError(msg string)
	Clone() Job
}

// IngestFileJob asynchronously ingests one already-uploaded file.
type IngestFileJob struct {
	JobID       string     `json:"job_id"`
	BatchID     string     `json:"batch_id"`
	FilePath    string     `json:"file_path"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

func (j *IngestFileJob) GetID() string           { return j.JobID }
func (j *IngestFileJob) GetType() JobType        { return JobTypeIngestFile }
func (j *IngestFileJob) GetStatus() JobStatus    { return j.Status }
func (j *IngestFileJob) GetBatchID() string      { return j.BatchID }
func (j *IngestFileJob) SetStatus(s JobStatus)   { j.Status = s }
func (j *IngestFileJob) SetError(msg string)     { j.Error = msg }
func (j *IngestFileJob) Clone() Job              { c := *j; return &c }

// IngestBatchJob asynchronously ingests a set of files as one batch, per
// spec.md §4.5's batch semantics (partial success allowed).
type IngestBatchJob struct {
	JobID       string     `json:"job_id"`
	BatchID     string     `json:"batch_id"`
	FilePaths   []string   `json:"file_paths"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

func (j *IngestBatchJob) GetID() string         { return j.JobID }
func (j *IngestBatchJob) GetType() JobType      { return JobTypeIngestBatch }
func (j *IngestBatchJob) GetStatus() JobStatus  { return j.Status }
func (j *IngestBatchJob) GetBatchID() string    { return j.BatchID }
func (j *IngestBatchJob) SetStatus(s JobStatus) { j.Status = s }
func (j *IngestBatchJob) SetError(msg string)   { j.Error = msg }
func (j *IngestBatchJob) Clone() Job {
	c := *j
	c.FilePaths = append([]string(nil), j.FilePaths...)
	return &c
}

// Publisher hands jobs off to a queue for asynchronous processing.
type Publisher interface {
	PublishIngestFile(ctx context.Context, job *IngestFileJob) error
	PublishIngestBatch(ctx context.Context, job *IngestBatchJob) error
	Close() error
}

// Consumer drains a queue and runs jobs through a handler.
type Consumer interface {
	Start(ctx context.Context, handler JobHandler) error
	Stop(ctx context.Context) error
}

// JobHandler processes one job. An error triggers a retry, up to
// MaxRetries, with exponential backoff.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state so /data/status can report on jobs across
// process restarts (in the in-memory implementation, only within the
// current process's lifetime).
type JobStore interface {
	SaveJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	BatchID string
	Status  JobStatus
	Limit   int
	Offset  int
}
