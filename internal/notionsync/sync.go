package notionsync

import (
	"context"
	"fmt"
	"time"

	bq "github.com/dvloznov/finance-ledger/internal/bigquery"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/jomei/notionapi"
)

// DebtLister is the ledger read SyncDebts needs.
type DebtLister interface {
	ListDebts(ctx context.Context, pendingOnly bool) ([]domain.DebtRecord, error)
}

// TransactionQuerier reads exported transactions.
type TransactionQuerier interface {
	QueryTransactionsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*bq.TransactionSnapshotRow, error)
}

// Result counts what a sync did. In a dry run nothing is written but the counts are the same.
type Result struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// SyncDebts mirrors every debt into a Notion database keyed by Debt ID.
// It archives pages whose debt no longer exists, updates pages whose amounts or status
// changed and creates pages for new debts. Per-page failures are logged and counted.
func SyncDebts(ctx context.Context, debts DebtLister, notionClient NotionService, notionDBID string, dryRun bool) (Result, error) {
	log := logger.FromContext(ctx)
	log.Info().Bool("dry_run", dryRun).Msg("Starting debt sync to Notion")

	records, err := debts.ListDebts(ctx, false)
	if err != nil {
		return Result{}, fmt.Errorf("SyncDebts: listing debts: %w", err)
	}
	valid := make(map[string]domain.DebtRecord, len(records))
	for _, d := range records {
		if d.ID != "" {
			valid[d.ID] = d
		}
	}

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return Result{}, fmt.Errorf("SyncDebts: %w", err)
	}
	log.Info().Int("debt_count", len(valid)).Int("notion_page_count", len(pages)).Msg("Retrieved debts and pages")

	var res Result
	existing := make(map[string]notionapi.Page, len(pages))
	for _, page := range pages {
		id := plainText(page, PropDebtID)
		if _, ok := valid[id]; ok {
			if _, dup := existing[id]; !dup {
				existing[id] = page
				continue
			}
		}
		// no Debt ID, a debt that is gone, or a duplicate page
		archiveStale(ctx, notionClient, page, "debt_id", id, dryRun, &res)
	}

	for _, d := range records {
		if d.ID == "" {
			continue
		}
		page, ok := existing[d.ID]
		switch {
		case ok && debtUpToDate(page, d):
			res.Unchanged++
		case ok:
			if dryRun {
				log.Info().Str("debt_id", d.ID).Msg("[DRY RUN] Would update Notion page")
				res.Updated++
				continue
			}
			if _, err := notionClient.UpdatePage(ctx, string(page.ID), DebtToNotionProperties(d)); err != nil {
				log.Warn().Err(err).Str("debt_id", d.ID).Str("page_id", string(page.ID)).Msg("Failed to update Notion page")
				res.Failed++
				continue
			}
			res.Updated++
		default:
			if dryRun {
				log.Info().Str("debt_id", d.ID).Msg("[DRY RUN] Would create Notion page")
				res.Created++
				continue
			}
			created, err := notionClient.CreatePage(ctx, notionDBID, DebtToNotionProperties(d))
			if err != nil {
				log.Warn().Err(err).Str("debt_id", d.ID).Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			log.Debug().Str("debt_id", d.ID).Str("page_id", string(created.ID)).Msg("Created Notion page")
			res.Created++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("deleted", res.Deleted).
		Int("unchanged", res.Unchanged).
		Int("failed", res.Failed).
		Msg("Debt sync completed")
	return res, nil
}

// SyncTransactions mirrors the exported transactions within a date range into a Notion
// database keyed by Transaction ID. Transactions are never edited, so existing pages are
// left alone; pages inside the range that no longer match an export are archived.
func SyncTransactions(ctx context.Context, repo TransactionQuerier, notionClient NotionService, notionDBID string, startDate, endDate time.Time, dryRun bool) (Result, error) {
	log := logger.FromContext(ctx)
	log.Info().
		Time("start_date", startDate).
		Time("end_date", endDate).
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync to Notion")

	txs, err := repo.QueryTransactionsByDateRange(ctx, startDate, endDate)
	if err != nil {
		return Result{}, fmt.Errorf("SyncTransactions: failed to query transactions: %w", err)
	}
	valid := make(map[string]bool, len(txs))
	for _, tx := range txs {
		valid[TransactionID(tx)] = true
	}

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return Result{}, fmt.Errorf("SyncTransactions: %w", err)
	}

	var res Result
	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		id := plainText(page, PropTransactionID)
		if valid[id] && !existing[id] {
			existing[id] = true
			continue
		}
		if !pageInRange(page, startDate, endDate) {
			continue
		}
		archiveStale(ctx, notionClient, page, "transaction_id", id, dryRun, &res)
	}

	for _, tx := range txs {
		id := TransactionID(tx)
		if existing[id] {
			res.Unchanged++
			continue
		}
		if dryRun {
			log.Info().Str("transaction_id", id).Msg("[DRY RUN] Would create new Notion page")
			res.Created++
			continue
		}
		if _, err := notionClient.CreatePage(ctx, notionDBID, TransactionToNotionProperties(tx)); err != nil {
			log.Warn().Err(err).Str("transaction_id", id).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		res.Created++
	}

	log.Info().
		Int("created", res.Created).
		Int("deleted", res.Deleted).
		Int("unchanged", res.Unchanged).
		Int("failed", res.Failed).
		Int("total", len(txs)).
		Msg("Transaction sync completed")
	return res, nil
}

func archiveStale(ctx context.Context, notionClient NotionService, page notionapi.Page, key, id string, dryRun bool, res *Result) {
	log := logger.FromContext(ctx)
	if dryRun {
		log.Info().Str(key, id).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
		res.Deleted++
		return
	}
	if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
		log.Warn().Err(err).Str(key, id).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
		res.Failed++
		return
	}
	res.Deleted++
}

// pageInRange reports whether a transaction page's Date falls within [start, end].
// Pages without a date are treated as in range.
func pageInRange(page notionapi.Page, start, end time.Time) bool {
	p, ok := page.Properties[PropDate].(*notionapi.DateProperty)
	if !ok || p.Date == nil || p.Date.Start == nil {
		return true
	}
	t := time.Time(*p.Date.Start)
	day := func(x time.Time) string { return x.Format("2006-01-02") }
	return day(t) >= day(start) && day(t) <= day(end)
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return allPages, nil
}
