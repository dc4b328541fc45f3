package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	jobList := flag.String("jobs", "backup_tables,export_bigquery,sync_notion", "Comma-separated job types to schedule")
	every := flag.Duration("every", time.Hour, "Interval between scheduled runs")
	once := flag.Bool("once", false, "Run each job once and exit")
	dryRun := flag.Bool("dry-run", false, "Pass dry-run to jobs that support it")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load config")
	}
	logger.SetLevel(cfg.Log.Level)
	log := logger.NewFromFormat(cfg.Log.Format)

	types, err := parseJobTypes(*jobList)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -jobs")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer a.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Options{
		Workers:    1,
		MaxRetries: cfg.Server.MaxAttempts - 1,
	}, jobStore, log)

	handler := a.JobHandler(ctx)
	if err := jobQueue.Start(ctx, handler.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Str("jobs", *jobList).Dur("every", *every).Bool("once", *once).Msg("Starting worker service")

	ids := schedule(ctx, jobQueue, types, *dryRun, log)
	if *once {
		waitForJobs(ctx, jobStore, ids, log)
	} else {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		ticker := time.NewTicker(*every)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ticker.C:
				schedule(ctx, jobQueue, types, *dryRun, log)
			case <-quit:
				break loop
			}
		}
	}

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}

func parseJobTypes(raw string) ([]jobs.JobType, error) {
	var out []jobs.JobType
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		t := jobs.JobType(s)
		if !t.Valid() {
			return nil, fmt.Errorf("parseJobTypes: unknown job type %q: %w", s, domain.ErrInvalidInput)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("parseJobTypes: no job types given: %w", domain.ErrInvalidInput)
	}
	return out, nil
}

func schedule(ctx context.Context, pub jobs.Publisher, types []jobs.JobType, dryRun bool, log zerolog.Logger) []string {
	ids := make([]string, 0, len(types))
	for _, t := range types {
		job := &jobs.Job{Type: t, Params: jobs.Params{DryRun: dryRun}}
		if err := pub.Publish(ctx, job); err != nil {
			log.Error().Err(err).Str("type", string(t)).Msg("Failed to schedule job")
			continue
		}
		ids = append(ids, job.JobID)
	}
	return ids
}

// waitForJobs polls until every job reached a terminal status.
func waitForJobs(ctx context.Context, store jobs.JobStore, ids []string, log zerolog.Logger) {
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for id := range pending {
			job, err := store.GetJob(ctx, id)
			if err != nil {
				log.Error().Err(err).Str("job_id", id).Msg("Lost track of job")
				delete(pending, id)
				continue
			}
			switch job.Status {
			case jobs.JobStatusCompleted:
				log.Info().Str("job_id", id).Str("type", string(job.Type)).Str("result", job.Result).Msg("Job completed")
				delete(pending, id)
			case jobs.JobStatusFailed:
				log.Error().Str("job_id", id).Str("type", string(job.Type)).Str("error", job.Error).Msg("Job failed")
				delete(pending, id)
			}
		}
	}
}
