package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-agent/internal/jobs"
	"github.com/google/uuid"
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// This implementation is suitable for single-instance deployments and testing.
// For production multi-instance deployments, migrate to Cloud Tasks or Pub/Sub.
type Queue struct {
	jobChan    chan jobs.Job
	closeChan  chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	store      jobs.JobStore
	closed     bool
	workers    int
	maxRetries int
	backoff    time.Duration
}

// NewQueue creates a new in-memory job queue. bufferSize determines how
// many jobs can be queued before Publish* blocks. backoffBase and
// maxRetries come from config's ingest_backoff_base_ms/ingest_retry_max
// (spec.md §5's retry policy: exponential, factor 2).
func NewQueue(bufferSize, workers, maxRetries int, backoffBase time.Duration, store jobs.JobStore) *Queue {
	if workers <= 0 {
		workers = 5
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoffBase <= 0 {
		backoffBase = 100 * time.Millisecond
	}
	return &Queue{
		jobChan:    make(chan jobs.Job, bufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		workers:    workers,
		maxRetries: maxRetries,
		backoff:    backoffBase,
	}
}

func (q *Queue) enqueue(ctx context.Context, job jobs.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
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

// PublishIngestFile implements the Publisher interface.
func (q *Queue) PublishIngestFile(ctx context.Context, job *jobs.IngestFileJob) error {
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
		job.MaxRetries = q.maxRetries
	}
	return q.enqueue(ctx, job)
}

// PublishIngestBatch implements the Publisher interface.
func (q *Queue) PublishIngestBatch(ctx context.Context, job *jobs.IngestBatchJob) error {
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
		job.MaxRetries = q.maxRetries
	}
	return q.enqueue(ctx, job)
}

// republish re-enqueues an already-known job (used by the retry path,
// where the job already has a JobID and history).
func (q *Queue) republish(ctx context.Context, job jobs.Job) error {
	return q.enqueue(ctx, job)
}

// Start implements the Consumer interface.
// It starts consuming jobs from the queue and processes them using the provided handler.
// The handler is called concurrently for each job, up to workerCount workers.
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

// worker processes jobs from the queue.
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

// processJob executes a single job with retry logic. Retries use
// exponential backoff: backoff * 2^(retryCount-1), per spec.md §5.
func (q *Queue) processJob(ctx context.Context, job jobs.Job, handler jobs.JobHandler) {
	job.SetStatus(jobs.JobStatusRunning)
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	if err != nil {
		job.SetError(err.Error())
		retryable, retryCount, maxRetries := retryState(job)

		if retryable && retryCount < maxRetries {
			bumpRetryCount(job)
			job.SetStatus(jobs.JobStatusRetrying)

			delay := q.backoff << uint(retryCount)
			time.AfterFunc(delay, func() {
				job.SetStatus(jobs.JobStatusPending)
				_ = q.republish(ctx, job)
			})
		} else {
			job.SetStatus(jobs.JobStatusFailed)
		}
	} else {
		job.SetStatus(jobs.JobStatusCompleted)
		job.SetError("")
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// retryState extracts the retry accounting fields without a public
// interface method for each — a small type switch, since only two
// concrete job types exist.
func retryState(job jobs.Job) (retryable bool, retryCount, maxRetries int) {
	switch j := job.(type) {
	case *jobs.IngestFileJob:
		return true, j.RetryCount, j.MaxRetries
	case *jobs.IngestBatchJob:
		return true, j.RetryCount, j.MaxRetries
	default:
		return false, 0, 0
	}
}

func bumpRetryCount(job jobs.Job) {
	switch j := job.(type) {
	case *jobs.IngestFileJob:
		j.RetryCount++
	case *jobs.IngestBatchJob:
		j.RetryCount++
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
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
