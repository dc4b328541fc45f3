package notionsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jomei/notionapi"
)

// requestInterval keeps the client under Notion's average of three requests per second.
const requestInterval = 350 * time.Millisecond

// NotionClient implements NotionService with the Notion SDK. Calls are spaced
// requestInterval apart across goroutines.
type NotionClient struct {
	client *notionapi.Client

	mu       sync.Mutex
	next     time.Time
	interval time.Duration
}

// NewNotionClient creates a client for an internal integration token.
func NewNotionClient(token string) (*NotionClient, error) {
	if token == "" {
		return nil, fmt.Errorf("NewNotionClient: empty integration token")
	}
	return &NotionClient{
		client:   notionapi.NewClient(notionapi.Token(token)),
		interval: requestInterval,
	}, nil
}

var _ NotionService = (*NotionClient)(nil)

// wait blocks until the next request slot or until ctx is done.
func (n *NotionClient) wait(ctx context.Context) error {
	n.mu.Lock()
	now := time.Now()
	slot := n.next
	if slot.Before(now) {
		slot = now
	}
	n.next = slot.Add(n.interval)
	n.mu.Unlock()

	d := time.Until(slot)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CreatePage adds a page to a database.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.wait(ctx); err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	page, err := n.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: database %s: %w", databaseID, err)
	}
	return page, nil
}

// UpdatePage replaces the given properties; others are left untouched.
func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.wait(ctx); err != nil {
		return nil, fmt.Errorf("UpdatePage: %w", err)
	}
	page, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: page %s: %w", pageID, err)
	}
	return page, nil
}

// QueryDatabase runs one paged query.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := n.wait(ctx); err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), filter)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: database %s: %w", databaseID, err)
	}
	return resp, nil
}

// ArchivePage sets the page's archived flag.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	if err := n.wait(ctx); err != nil {
		return fmt.Errorf("ArchivePage: %w", err)
	}
	if _, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Archived: true,
	}); err != nil {
		return fmt.Errorf("ArchivePage: page %s: %w", pageID, err)
	}
	return nil
}
