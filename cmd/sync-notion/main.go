package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/notionsync"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	days := flag.Int("days", 0, "Transaction window in days (defaults to notion.sync_days)")
	skipTransactions := flag.Bool("debts-only", false, "Sync only the debts database")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load config")
	}
	logger.SetLevel(cfg.Log.Level)
	log := logger.NewFromFormat(cfg.Log.Format)

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer a.Close()

	var querier notionsync.TransactionQuerier
	if !*skipTransactions && cfg.BigQuery.ProjectID != "" && cfg.Notion.TransactionsDatabaseID != "" {
		repo, err := a.SnapshotRepository(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
		}
		querier = repo
	}

	n, err := a.Notion(ctx, querier)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Notion client")
	}

	log.Info().
		Bool("dry_run", *dryRun).
		Bool("transactions", n.Transactions != nil).
		Msg("Starting Notion sync")

	h := &jobs.Handler{Notion: n, Log: log}
	job := &jobs.Job{
		JobID:  "cli",
		Type:   jobs.JobTypeSyncNotion,
		Params: jobs.Params{DryRun: *dryRun, Days: *days},
	}
	if err := h.Handle(ctx, job); err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %s\n", job.Result)
}
