package notionsync

import (
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the recurring series database.
const (
	PropDescription  = "Description"
	PropSeriesID     = "Series ID"
	PropUserID       = "User ID"
	PropAmount       = "Amount"
	PropLastDate     = "Last Date"
	PropTransactions = "Transactions"
	PropMembers      = "Members"
	PropSyncedAt     = "Synced At"
)

// maxRichText is Notion's limit for a single rich text content block.
const maxRichText = 2000

func richText(content string) []notionapi.RichText {
	if len(content) > maxRichText {
		content = content[:maxRichText]
	}
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

func dateProperty(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{
		Date: &notionapi.DateObject{
			Start: &d,
		},
	}
}

// SeriesKey is the value stored in the "Series ID" property.
func SeriesKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// SeriesToNotionProperties converts a recurring series to page properties.
// Description, amount and date are the series' derived fields.
func SeriesToNotionProperties(s *domain.RecurringTransaction, syncedAt time.Time) notionapi.Properties {
	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(s.Description()),
		},
		PropSeriesID: notionapi.RichTextProperty{
			RichText: richText(SeriesKey(s.ID)),
		},
		PropUserID: notionapi.NumberProperty{
			Number: float64(s.UserID),
		},
		PropAmount: notionapi.NumberProperty{
			Number: s.Amount().InexactFloat64(),
		},
		PropTransactions: notionapi.NumberProperty{
			Number: float64(len(s.Members)),
		},
		PropSyncedAt: dateProperty(syncedAt),
	}

	if !s.Date().IsZero() {
		props[PropLastDate] = dateProperty(s.Date())
	}

	// Members - one line per transaction in append order
	if len(s.Members) > 0 {
		lines := make([]string, 0, len(s.Members))
		for _, t := range s.Members {
			lines = append(lines, t.Date.Format("2006-01-02")+" "+t.Amount.StringFixed(domain.AmountScale)+" "+t.Description)
		}
		props[PropMembers] = notionapi.RichTextProperty{
			RichText: richText(strings.Join(lines, "\n")),
		}
	}

	return props
}

// extractSeriesID returns the "Series ID" of a page, or "" if the page has none.
func extractSeriesID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropSeriesID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(rt.RichText) > 0 {
				return rt.RichText[0].PlainText
			}
		}
	}
	return ""
}

// extractUserID returns the "User ID" of a page and whether it was set.
func extractUserID(page notionapi.Page) (int64, bool) {
	if prop, ok := page.Properties[PropUserID]; ok {
		if n, ok := prop.(*notionapi.NumberProperty); ok {
			return int64(n.Number), true
		}
	}
	return 0, false
}
