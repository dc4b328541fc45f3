package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/dvloznov/finance-ledger/internal/config"
	infraBQ "github.com/dvloznov/finance-ledger/internal/infra/bigquery"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

func main() {
	projectID := flag.String("project", "", "GCP project ID (overrides bigquery.project_id)")
	datasetID := flag.String("dataset", "", "BigQuery dataset ID (overrides bigquery.dataset)")
	appliedBy := flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir := flag.String("migrations", "", "Directory of NNNN_name.sql files (defaults to the built-in set)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load config")
	}
	logger.SetLevel(cfg.Log.Level)
	log := logger.NewFromFormat(cfg.Log.Format)

	if *projectID != "" {
		cfg.BigQuery.ProjectID = *projectID
	}
	if *datasetID != "" {
		cfg.BigQuery.Dataset = *datasetID
	}
	if cfg.BigQuery.ProjectID == "" {
		log.Fatal().Msg("Error: -project or bigquery.project_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewBigQuerySnapshotRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer repo.Close()

	log.Info().
		Str("project", cfg.BigQuery.ProjectID).
		Str("dataset", cfg.BigQuery.Dataset).
		Msg("Connected to BigQuery")

	fsys := infraBQ.Migrations()
	if *migrationsDir != "" {
		fsys = os.DirFS(*migrationsDir)
	}

	res, err := repo.Migrate(ctx, fsys, *appliedBy)
	if err != nil {
		log.Fatal().Err(err).Int("applied", res.Applied).Msg("Migration failed")
	}

	if res.Applied == 0 {
		log.Info().Int("found", res.Found).Msg("No new migrations to apply. Dataset is up to date.")
		return
	}
	log.Info().Int("applied", res.Applied).Int("skipped", res.Skipped).Msg("Migrations applied")
}
