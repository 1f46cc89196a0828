package feed

import (
	"log/slog"
	"slices"

	"github.com/feedpoll/feedpoll/app/store"
)

// NormalizeItem converts one raw entry into its canonical item record. The
// identity key falls back GUID, then ID, then link; an entry with none of
// the three has no representable identity and is skipped (ok=false).
func NormalizeItem(feedID string, entry Entry) (store.Record, bool) {
	itemKey := entry.GUID
	if itemKey == "" {
		itemKey = entry.ID
	}
	if itemKey == "" {
		itemKey = entry.Link
	}
	if itemKey == "" {
		return store.Record{}, false
	}

	attrs := store.Attrs{}
	attrs.SetString("title", entry.Title)
	attrs.SetString("link", entry.Link)
	attrs.SetString("description", entry.Description)
	attrs.SetString("author", entry.Author)
	attrs.SetString("published", entry.Published)
	attrs.SetString("updated", entry.Updated)
	attrs.SetString("content", entry.Content)
	attrs.SetStringSet("categories", distinct(entry.Categories))
	attrs.SetString("comments_link", commentsLink(entry))

	return store.Record{Key: store.ItemKey(feedID, itemKey), Attrs: attrs}, true
}

// NormalizeItems converts all representable entries of a parsed feed.
// Entries lacking an identity are dropped, never fatal.
func NormalizeItems(feedID string, entries []Entry) []store.Record {
	records := make([]store.Record, 0, len(entries))
	skipped := 0

	for _, entry := range entries {
		record, ok := NormalizeItem(feedID, entry)
		if !ok {
			skipped++
			continue
		}
		records = append(records, record)
	}

	if skipped > 0 {
		slog.Debug("Skipped entries without identity", "feed", feedID, "count", skipped)
	}

	return records
}

// commentsLink prefers the entry's direct comments value, then the first
// link with a "replies" relation.
func commentsLink(entry Entry) string {
	if entry.Comments != "" {
		return entry.Comments
	}
	for _, link := range entry.Links {
		if link.Rel == "replies" && link.Href != "" {
			return link.Href
		}
	}
	return ""
}

func distinct(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}
