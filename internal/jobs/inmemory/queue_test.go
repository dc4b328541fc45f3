package inmemory

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/rs/zerolog"
)

func newTestQueue(store jobs.JobStore) *Queue {
	return NewQueue(Options{
		Workers:    1,
		MaxRetries: 2,
		Backoff:    func(int) time.Duration { return time.Millisecond },
	}, store, zerolog.New(io.Discard))
}

// waitFor polls the store until the job reaches a terminal status.
func waitFor(t *testing.T, s *Store, id string) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.GetJob(context.Background(), id)
		if err == nil && (job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed) {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestQueue_Completes(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job *jobs.Job) error {
		job.Result = "ok"
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.Job{Type: jobs.JobTypeBackupTables}
	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if job.JobID == "" || job.MaxRetries != 2 {
		t.Errorf("Publish did not fill defaults: %+v", job)
	}

	got := waitFor(t, store, job.JobID)
	if got.Status != jobs.JobStatusCompleted || got.Result != "ok" || got.StartedAt == nil || got.CompletedAt == nil {
		t.Errorf("job = %+v", got)
	}
	_ = q.Stop(context.Background())
}

func TestQueue_RetriesThenFails(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	handler := func(ctx context.Context, job *jobs.Job) error {
		calls.Add(1)
		return errors.New("bigquery unavailable")
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.Job{Type: jobs.JobTypeExportBigQuery}
	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := waitFor(t, store, job.JobID)
	if got.Status != jobs.JobStatusFailed || got.RetryCount != 2 || got.Error != "bigquery unavailable" {
		t.Errorf("job = %+v", got)
	}
	if calls.Load() != 3 {
		t.Errorf("handler calls = %d, want 3", calls.Load())
	}
	_ = q.Stop(context.Background())
}

func TestQueue_RetrySucceeds(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	handler := func(ctx context.Context, job *jobs.Job) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}
	_ = q.Start(ctx, handler)

	job := &jobs.Job{Type: jobs.JobTypeSyncNotion}
	_ = q.Publish(ctx, job)

	got := waitFor(t, store, job.JobID)
	if got.Status != jobs.JobStatusCompleted || got.RetryCount != 1 || got.Error != "" {
		t.Errorf("job = %+v", got)
	}
	_ = q.Stop(context.Background())
}

func TestQueue_PublishRejects(t *testing.T) {
	q := newTestQueue(NewStore())
	if err := q.Publish(context.Background(), &jobs.Job{Type: "parse_document"}); err == nil {
		t.Error("unknown job type should be rejected")
	}

	_ = q.Stop(context.Background())
	err := q.Publish(context.Background(), &jobs.Job{Type: jobs.JobTypeBackupTables})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("error = %v, want ErrQueueClosed", err)
	}
	if err := q.Start(context.Background(), nil); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Start after Stop error = %v", err)
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, j := range []*jobs.Job{
		{JobID: "a", Type: jobs.JobTypeBackupTables, Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "b", Type: jobs.JobTypeSyncNotion, Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Hour)},
		{JobID: "c", Type: jobs.JobTypeBackupTables, Status: jobs.JobStatusPending, CreatedAt: base.Add(2 * time.Hour)},
	} {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", want: []string{"c", "b", "a"}},
		{name: "by type", filter: jobs.JobFilter{Type: jobs.JobTypeBackupTables}, want: []string{"c", "a"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusFailed}, want: []string{"b"}},
		{name: "limit offset", filter: jobs.JobFilter{Limit: 1, Offset: 1}, want: []string{"b"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 5}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListJobs() = %d jobs, want %v", len(got), tt.want)
			}
			for i, j := range got {
				if j.JobID != tt.want[i] {
					t.Errorf("job[%d] = %s, want %s", i, j.JobID, tt.want[i])
				}
			}
		})
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetJob(missing) error = %v", err)
	}
	if err := s.UpdateJobStatus(ctx, "b", jobs.JobStatusPending, ""); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}
	if j, _ := s.GetJob(ctx, "b"); j.Status != jobs.JobStatusPending {
		t.Errorf("status = %s", j.Status)
	}
	if err := s.SaveJob(ctx, &jobs.Job{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("SaveJob without ID error = %v", err)
	}
}
