package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
)

// queryPageSize is the largest page size the Notion API accepts.
const queryPageSize = 100

// NotionClient talks to one integration's databases through notionapi.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a client authenticated with an integration token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{client: notionapi.NewClient(notionapi.Token(token))}
}

// CreateSeriesPage adds a page under databaseID and returns its id.
func (n *NotionClient) CreateSeriesPage(ctx context.Context, databaseID string, props notionapi.Properties) (string, error) {
	page, err := n.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: props,
	})
	if err != nil {
		return "", fmt.Errorf("CreateSeriesPage: database %s: %w", databaseID, err)
	}
	return string(page.ID), nil
}

// UpdateSeriesPage overwrites the given properties of a page.
func (n *NotionClient) UpdateSeriesPage(ctx context.Context, pageID string, props notionapi.Properties) error {
	if _, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return fmt.Errorf("UpdateSeriesPage: page %s: %w", pageID, err)
	}
	return nil
}

// ArchivePage moves a page to the trash. Notion has no hard delete.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	if _, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Archived: true}); err != nil {
		return fmt.Errorf("ArchivePage: page %s: %w", pageID, err)
	}
	return nil
}

// QueryPages returns one batch of databaseID's pages starting at cursor
// (empty for the first batch) and the cursor of the next batch, which is
// empty after the last one.
func (n *NotionClient) QueryPages(ctx context.Context, databaseID, cursor string) ([]notionapi.Page, string, error) {
	req := &notionapi.DatabaseQueryRequest{PageSize: queryPageSize}
	if cursor != "" {
		req.StartCursor = notionapi.Cursor(cursor)
	}

	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, "", fmt.Errorf("QueryPages: database %s: %w", databaseID, err)
	}
	if !resp.HasMore {
		return resp.Results, "", nil
	}
	return resp.Results, string(resp.NextCursor), nil
}

var _ NotionService = (*NotionClient)(nil)
