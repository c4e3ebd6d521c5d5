package notionsync

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/jomei/notionapi"
)

// SyncResult counts what a sync did, or would do in dry-run mode.
type SyncResult struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// SyncRecurringSeries mirrors a user's recurring series into a Notion database.
// Pages are matched by their "Series ID" property and scoped by "User ID";
// pages of other users are never touched. This function:
// 1. Queries all existing pages of the database
// 2. Archives the user's pages whose series no longer exists (and duplicates)
// 3. Updates pages of existing series and creates pages for new ones
//
// Per-page failures are logged and counted; the sync continues.
func SyncRecurringSeries(ctx context.Context, lister SeriesLister, notionClient NotionService, notionDBID string, userID int64, dryRun bool) (*SyncResult, error) {
	log := logger.FromContext(ctx).With().Int64("user_id", userID).Bool("dry_run", dryRun).Logger()

	log.Info().Msg("Starting recurring series sync to Notion")

	series, err := lister.ListRecurringSeries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("SyncRecurringSeries: listing series: %w", err)
	}

	log.Info().Int("series_count", len(series)).Msg("Retrieved recurring series")

	current := make(map[string]*domain.RecurringTransaction, len(series))
	for _, s := range series {
		current[SeriesKey(s.ID)] = s
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("SyncRecurringSeries: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	result := &SyncResult{}

	// Keep the first page per series; everything else of this user is stale.
	pageBySeries := make(map[string]string)
	for _, page := range notionPages {
		if owner, ok := extractUserID(page); !ok || owner != userID {
			continue
		}

		key := extractSeriesID(page)
		_, isCurrent := current[key]
		_, seen := pageBySeries[key]
		if isCurrent && !seen {
			pageBySeries[key] = string(page.ID)
			continue
		}

		if dryRun {
			log.Info().Str("series_id", key).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
			result.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("series_id", key).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			result.Failed++
			continue
		}
		log.Info().Str("series_id", key).Str("page_id", string(page.ID)).Msg("Archived stale Notion page")
		result.Archived++
	}

	syncedAt := time.Now().UTC()
	for _, s := range series {
		key := SeriesKey(s.ID)
		pageID, exists := pageBySeries[key]

		if dryRun {
			if exists {
				log.Info().Str("series_id", key).Str("page_id", pageID).Msg("[DRY RUN] Would update Notion page")
				result.Updated++
			} else {
				log.Info().Str("series_id", key).Msg("[DRY RUN] Would create Notion page")
				result.Created++
			}
			continue
		}

		props := SeriesToNotionProperties(s, syncedAt)

		if exists {
			if err := notionClient.UpdateSeriesPage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("series_id", key).Str("page_id", pageID).Msg("Failed to update Notion page")
				result.Failed++
				continue
			}
			result.Updated++
			continue
		}

		newID, err := notionClient.CreateSeriesPage(ctx, notionDBID, props)
		if err != nil {
			log.Warn().Err(err).Str("series_id", key).Msg("Failed to create Notion page")
			result.Failed++
			continue
		}
		log.Info().Str("series_id", key).Str("page_id", newID).Msg("Created Notion page")
		result.Created++
	}

	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("archived", result.Archived).
		Int("failed", result.Failed).
		Msg("Recurring series sync completed")

	return result, nil
}

// queryAllNotionPages follows QueryPages cursors until the database is exhausted.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	cursor := ""
	for {
		pages, next, err := notionClient.QueryPages(ctx, databaseID, cursor)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		all = append(all, pages...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}
