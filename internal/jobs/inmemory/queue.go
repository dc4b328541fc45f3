package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrQueueClosed is returned by Publish after Stop.
var ErrQueueClosed = errors.New("queue is closed")

// Options tune a Queue. Zero values take the defaults.
type Options struct {
	BufferSize int // default 100
	Workers    int // default 2
	MaxRetries int // default 2

	// Backoff is the delay before retry n (1-based). Default n seconds.
	Backoff func(n int) time.Duration
}

// Queue is an in-memory job publisher and consumer backed by a channel.
// It suits a single instance; retries are lost on restart.
type Queue struct {
	jobChan   chan *jobs.Job
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	opts      Options
	log       zerolog.Logger
	closed    bool
}

// NewQueue creates a new in-memory job queue.
func NewQueue(opts Options, store jobs.JobStore, log zerolog.Logger) *Queue {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.Backoff == nil {
		opts.Backoff = func(n int) time.Duration { return time.Duration(n) * time.Second }
	}
	return &Queue{
		jobChan:   make(chan *jobs.Job, opts.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		opts:      opts,
		log:       log.With().Str("component", "jobs").Logger(),
	}
}

// Publish enqueues a job for asynchronous processing.
func (q *Queue) Publish(ctx context.Context, job *jobs.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("Publish: %w", ErrQueueClosed)
	}
	if !job.Type.Valid() {
		return fmt.Errorf("Publish: unknown job type %q", job.Type)
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.opts.MaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("Publish: failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		q.log.Info().Str("job_id", job.JobID).Str("type", string(job.Type)).Msg("Job enqueued")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("Publish: %w", ErrQueueClosed)
	}
}

// Start launches the workers. The handler is called concurrently, up to Options.Workers at a time.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("Start: %w", ErrQueueClosed)
	}
	q.mu.RUnlock()

	for i := 0; i < q.opts.Workers; i++ {
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

// processJob executes a single job, scheduling a retry on failure while attempts remain.
func (q *Queue) processJob(ctx context.Context, job *jobs.Job, handler jobs.JobHandler) {
	log := q.log.With().Str("job_id", job.JobID).Str("type", string(job.Type)).Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	q.save(ctx, job)

	err := handler(ctx, job)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	if err == nil {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		q.save(ctx, job)
		log.Info().Str("result", job.Result).Msg("Job completed")
		return
	}

	job.Error = err.Error()
	if job.RetryCount >= job.MaxRetries {
		job.Status = jobs.JobStatusFailed
		q.save(ctx, job)
		log.Error().Err(err).Int("retry_count", job.RetryCount).Msg("Job failed")
		return
	}

	job.RetryCount++
	job.Status = jobs.JobStatusRetrying
	q.save(ctx, job)
	log.Warn().Err(err).Int("retry_count", job.RetryCount).Msg("Job failed, retrying")

	retry := *job
	time.AfterFunc(q.opts.Backoff(retry.RetryCount), func() {
		retry.Status = jobs.JobStatusPending
		retry.StartedAt = nil
		retry.CompletedAt = nil
		if err := q.Publish(context.WithoutCancel(ctx), &retry); err != nil {
			log.Warn().Err(err).Msg("Retry dropped")
		}
	})
}

func (q *Queue) save(ctx context.Context, job *jobs.Job) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

// Stop closes the queue and waits for in-flight jobs to complete.
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

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
