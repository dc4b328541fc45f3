// Package app wires the configured components together for the command binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-ledger/internal/backup"
	"github.com/dvloznov/finance-ledger/internal/balances"
	"github.com/dvloznov/finance-ledger/internal/classifier"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/export"
	"github.com/dvloznov/finance-ledger/internal/gcsuploader"
	infraBQ "github.com/dvloznov/finance-ledger/internal/infra/bigquery"
	"github.com/dvloznov/finance-ledger/internal/intake"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/notionsync"
	"github.com/dvloznov/finance-ledger/internal/rates"
	"github.com/dvloznov/finance-ledger/internal/tabular"
	"github.com/dvloznov/finance-ledger/internal/tabular/sheets"
	"github.com/rs/zerolog"
)

// App holds the core components built from one Config.
type App struct {
	Config config.Config
	Log    zerolog.Logger

	Debts        tabular.Store
	Transactions tabular.Store

	Rates      *rates.Service
	Ledger     *ledger.Ledger
	Recorder   *balances.Recorder
	Aggregator *balances.Aggregator
	Processor  *intake.Processor
	// Classifier is nil when no Gemini API key is configured.
	Classifier classifier.Classifier

	closers []func() error
}

// Tables are the two worksheets.
type Tables struct {
	Debts        tabular.Store
	Transactions tabular.Store
}

// New opens the spreadsheet and builds the core components.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	if cfg.Sheets.SpreadsheetID == "" {
		return nil, fmt.Errorf("New: sheets.spreadsheet_id is empty: %w", domain.ErrInvalidInput)
	}
	svc, err := sheets.NewService(ctx, cfg.Sheets.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	debts, err := sheets.NewTable(ctx, svc, cfg.Sheets.SpreadsheetID, cfg.Sheets.DebtsTab,
		domain.DebtHeader, sheets.WithHeaderCanon(domain.CanonicalDebtColumn))
	if err != nil {
		return nil, fmt.Errorf("New: opening %s: %w", cfg.Sheets.DebtsTab, err)
	}
	txs, err := sheets.NewTable(ctx, svc, cfg.Sheets.SpreadsheetID, cfg.Sheets.TransactionsTab,
		domain.TransactionHeader, sheets.WithHeaderCanon(domain.CanonicalTransactionColumn))
	if err != nil {
		return nil, fmt.Errorf("New: opening %s: %w", cfg.Sheets.TransactionsTab, err)
	}
	return NewWithTables(ctx, cfg, Tables{Debts: debts, Transactions: txs}, log)
}

// NewWithTables builds the core components over already opened tables.
func NewWithTables(ctx context.Context, cfg config.Config, t Tables, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Debts: t.Debts, Transactions: t.Transactions}

	var cache rates.Cache
	if cfg.Redis.Addr != "" {
		rc, err := rates.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Key, cfg.Redis.TTL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, keeping the last known rate in memory")
		} else {
			cache = rc
			a.closers = append(a.closers, rc.Close)
		}
	}
	a.Rates = rates.NewService(rates.Options{
		CurrentURL:    cfg.Rates.CurrentURL,
		HistoricalURL: cfg.Rates.HistoricalURL,
		Timeout:       cfg.Rates.Timeout,
		LookbackDays:  cfg.Rates.LookbackDays,
	}, cache, log)
	if cfg.Rates.ManualRate > 0 {
		if err := a.Rates.SetManualOverride(ctx, cfg.Rates.ManualRate); err != nil {
			return nil, fmt.Errorf("NewWithTables: %w", err)
		}
	}

	limits := ledger.DefaultLimits()
	limits[domain.LineDaily] = cfg.Credit.DailyLimit
	limits[domain.LinePrincipal] = cfg.Credit.PrincipalLimit
	a.Ledger = ledger.New(t.Debts, ledger.Options{
		IDPrefix:      cfg.Ledger.IDPrefix,
		Limits:        limits,
		LocalCurrency: cfg.Ledger.LocalCurrency,
		LocalLocation: cfg.Ledger.LocalLocation,
	}, log)

	local := balances.Local{Currency: cfg.Ledger.LocalCurrency, Location: cfg.Ledger.LocalLocation}
	a.Recorder = balances.NewRecorder(t.Transactions, a.Rates, local, nil, log)
	a.Aggregator = balances.NewAggregator(t.Transactions, a.Rates, cfg.Ledger.LocalCurrency, log)

	var cl classifier.Classifier
	if key := cfg.GeminiAPIKey(); key != "" {
		gen, err := classifier.NewGeminiGenerator(ctx, key, cfg.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("NewWithTables: %w", err)
		}
		cl = classifier.New(gen, classifier.Options{LocalCurrency: cfg.Ledger.LocalCurrency}, log)
	} else {
		log.Info().Msg("No Gemini API key, text and receipt intents are disabled")
	}
	a.Classifier = cl
	a.Processor = intake.NewProcessor(cl, a.Ledger, a.Recorder, a.Rates, local, log)

	return a, nil
}

// BackupTables lists both worksheets under their current headers.
func (a *App) BackupTables() []backup.Table {
	return []backup.Table{
		{Name: "debts", Header: domain.DebtHeader, Store: a.Debts},
		{Name: "transactions", Header: domain.TransactionHeader, Store: a.Transactions},
	}
}

// Backup connects to Cloud Storage. It fails when no bucket is configured.
func (a *App) Backup(ctx context.Context) (*backup.Backup, error) {
	if a.Config.GCS.Bucket == "" {
		return nil, fmt.Errorf("Backup: gcs.bucket is empty: %w", domain.ErrInvalidInput)
	}
	storage, err := gcsuploader.NewGCSStorageService(ctx)
	if err != nil {
		return nil, fmt.Errorf("Backup: %w", err)
	}
	a.closers = append(a.closers, storage.Close)
	return backup.New(storage, a.Config.GCS.Bucket, a.Log), nil
}

// SnapshotRepository connects to BigQuery. It fails when no project is configured.
func (a *App) SnapshotRepository(ctx context.Context) (*infraBQ.BigQuerySnapshotRepository, error) {
	repo, err := infraBQ.NewBigQuerySnapshotRepository(ctx, a.Config.BigQuery.ProjectID, a.Config.BigQuery.Dataset)
	if err != nil {
		return nil, fmt.Errorf("SnapshotRepository: %w", err)
	}
	a.closers = append(a.closers, repo.Close)
	return repo, nil
}

// Notion connects to Notion. It fails when no token or debts database is configured.
func (a *App) Notion(ctx context.Context, transactions notionsync.TransactionQuerier) (*jobs.Notion, error) {
	if a.Config.Notion.DatabaseID == "" {
		return nil, fmt.Errorf("Notion: notion.database_id is empty: %w", domain.ErrInvalidInput)
	}
	client, err := notionsync.NewNotionClient(a.Config.NotionToken())
	if err != nil {
		return nil, fmt.Errorf("Notion: %w", err)
	}
	n := &jobs.Notion{
		Client:          client,
		Debts:           a.Ledger,
		DebtsDatabaseID: a.Config.Notion.DatabaseID,
		Days:            a.Config.Notion.SyncDays,
	}
	if transactions != nil && a.Config.Notion.TransactionsDatabaseID != "" {
		n.Transactions = transactions
		n.TransactionsDatabaseID = a.Config.Notion.TransactionsDatabaseID
	}
	return n, nil
}

// JobHandler wires every configured integration; missing ones are logged and left nil.
func (a *App) JobHandler(ctx context.Context) *jobs.Handler {
	h := &jobs.Handler{BackupTables: a.BackupTables(), Log: a.Log}

	var querier notionsync.TransactionQuerier
	if a.Config.BigQuery.ProjectID != "" {
		repo, err := a.SnapshotRepository(ctx)
		if err != nil {
			a.Log.Warn().Err(err).Msg("BigQuery export disabled")
		} else {
			h.Exporter = export.NewExporter(a.Ledger, a.Transactions, repo, a.Log)
			querier = repo
		}
	}
	if a.Config.GCS.Bucket != "" {
		b, err := a.Backup(ctx)
		if err != nil {
			a.Log.Warn().Err(err).Msg("Table backups disabled")
		} else {
			h.Backup = b
		}
	}
	if a.Config.Notion.DatabaseID != "" {
		n, err := a.Notion(ctx, querier)
		if err != nil {
			a.Log.Warn().Err(err).Msg("Notion sync disabled")
		} else {
			h.Notion = n
		}
	}
	return h
}

// Close releases every client opened by the App.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
