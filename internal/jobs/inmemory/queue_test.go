package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-agent/internal/jobs"
)

func TestQueuePublishIngestFileAssignsDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, 3, time.Millisecond, store)
	job := &jobs.IngestFileJob{FilePath: "gs://bucket/a.json"}

	if err := q.PublishIngestFile(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestFile() error = %v", err)
	}
	if job.JobID == "" {
		t.Error("expected a generated JobID")
	}
	if job.Status != jobs.JobStatusPending {
		t.Errorf("Status = %v, want Pending", job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3 (queue default)", job.MaxRetries)
	}
}

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus, timeout time.Duration) jobs.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var got jobs.Job
	for time.Now().Before(deadline) {
		j, err := store.GetJob(context.Background(), jobID)
		if err == nil {
			got = j
			if j.GetStatus() == want {
				return j
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %v within %v (last seen: %+v)", jobID, want, timeout, got)
	return nil
}

func TestQueueProcessesPublishedJobToCompletion(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, 3, time.Millisecond, store)

	handlerCalls := make(chan struct{}, 10)
	handler := func(ctx context.Context, job jobs.Job) error {
		handlerCalls <- struct{}{}
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer q.Stop(context.Background())

	job := &jobs.IngestFileJob{FilePath: "a.json"}
	if err := q.PublishIngestFile(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestFile() error = %v", err)
	}

	select {
	case <-handlerCalls:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted, 500*time.Millisecond)
	if got.GetStatus() != jobs.JobStatusCompleted {
		t.Errorf("final status = %v, want Completed", got.GetStatus())
	}
}

func TestQueueRetriesFailedJobWithBackoffThenSucceeds(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, 3, time.Millisecond, store)

	attempts := 0
	handler := func(ctx context.Context, job jobs.Job) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient failure")
		}
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer q.Stop(context.Background())

	job := &jobs.IngestFileJob{FilePath: "a.json"}
	if err := q.PublishIngestFile(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestFile() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted, time.Second)
	if got.GetStatus() != jobs.JobStatusCompleted {
		t.Errorf("final status = %v, want Completed after retry", got.GetStatus())
	}
	if attempts < 2 {
		t.Errorf("attempts = %d, want at least 2 (one failure, one retry)", attempts)
	}
}

func TestQueueFailsJobAfterExhaustingRetries(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, 1, time.Millisecond, store) // maxRetries=1: one retry, then give up

	handler := func(ctx context.Context, job jobs.Job) error {
		return errors.New("permanent failure")
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer q.Stop(context.Background())

	job := &jobs.IngestFileJob{FilePath: "a.json"}
	if err := q.PublishIngestFile(context.Background(), job); err != nil {
		t.Fatalf("PublishIngestFile() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed, time.Second)
	if got.GetStatus() != jobs.JobStatusFailed {
		t.Errorf("final status = %v, want Failed", got.GetStatus())
	}
	if got.(*jobs.IngestFileJob).Error != "permanent failure" {
		t.Errorf("Error = %q, want the handler's last error message", got.(*jobs.IngestFileJob).Error)
	}
}

func TestQueueEnqueueAfterCloseFails(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, 3, time.Millisecond, store)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	job := &jobs.IngestFileJob{FilePath: "a.json"}
	if err := q.PublishIngestFile(context.Background(), job); err == nil {
		t.Error("expected PublishIngestFile to fail after Close")
	}
}

func TestQueueStartFailsAfterClose(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, 3, time.Millisecond, store)
	_ = q.Close()
	if err := q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error { return nil }); err == nil {
		t.Error("expected Start to fail after Close")
	}
}
