package notionsync

import (
	"context"

	"github.com/jomei/notionapi"
)

// NotionService is the part of the Notion API the sync uses.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase returns one page of results; follow NextCursor while HasMore is set.
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// ArchivePage moves a page to the trash. Notion has no hard delete.
	ArchivePage(ctx context.Context, pageID string) error
}
