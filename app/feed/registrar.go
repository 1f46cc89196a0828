package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/feedpoll/feedpoll/app/store"
)

const (
	defaultUpdatePeriod    = "hourly"
	defaultUpdateFrequency = "1"
)

// Registrar creates and deactivates feed metadata records. Registration
// validates the source by fetching and parsing it, then writes the metadata
// record and the URL uniqueness marker in one transaction.
type Registrar struct {
	fetcher *Fetcher
	gateway *store.Gateway
}

func NewRegistrar(fetcher *Fetcher, gateway *store.Gateway) *Registrar {
	return &Registrar{fetcher: fetcher, gateway: gateway}
}

// Register subscribes a new feed and returns its generated identifier.
// Returns ErrInvalidFeed when the source cannot be fetched or parsed and
// ErrDuplicateFeed when a feed with the same URL already exists.
func (r *Registrar) Register(ctx context.Context, feedURL string) (string, error) {
	parsed, err := r.fetcher.Run(ctx, feedURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidFeed, err)
	}

	feedID := uuid.NewString()
	meta := store.Record{
		Key:   store.FeedKey(feedID),
		Attrs: metaAttrs(feedURL, parsed),
	}

	err = r.gateway.PutNewFeed(ctx, store.UniqueURLKey(feedURL), meta)
	if errors.Is(err, store.ErrConditionFailed) {
		return "", fmt.Errorf("%w: %s", ErrDuplicateFeed, feedURL)
	}
	if err != nil {
		return "", fmt.Errorf("failed to store feed metadata: %w", err)
	}

	slog.Info("Feed registered", "feed", feedID, "url", feedURL, "title", parsed.Meta.Title)

	return feedID, nil
}

// Deactivate performs the logical delete: the feed's status flips to
// inactive and its items are left in place.
func (r *Registrar) Deactivate(ctx context.Context, feedID string) error {
	set := store.Attrs{"status": store.StringValue(StatusInactive)}

	err := r.gateway.UpdateMeta(ctx, store.FeedKey(feedID), set, nil)
	if err != nil {
		return fmt.Errorf("failed to deactivate feed: %w", err)
	}

	slog.Info("Feed deactivated", "feed", feedID)

	return nil
}

// metaAttrs builds the metadata document for a newly registered feed.
// Optional source fields that are empty are omitted; operational state
// starts healthy and never polled.
func metaAttrs(feedURL string, parsed *ParsedFeed) store.Attrs {
	meta := parsed.Meta

	updatePeriod := meta.UpdatePeriod
	if updatePeriod == "" {
		updatePeriod = defaultUpdatePeriod
	}
	updateFrequency := meta.UpdateFrequency
	if updateFrequency == "" {
		updateFrequency = defaultUpdateFrequency
	}

	attrs := store.Attrs{}
	attrs.SetString("feed_url", feedURL)
	attrs.SetString("feed_title", meta.Title)
	attrs.SetString("feed_link", meta.Link)
	attrs.SetString("feed_description", meta.Description)
	attrs.SetString("feed_author", meta.Author)
	attrs.SetString("feed_language", meta.Language)
	attrs.SetString("feed_published", meta.Published)
	attrs.SetString("feed_updated", meta.Updated)
	attrs.SetString("feed_image", meta.ImageURL)
	attrs.SetStringSet("categories", distinct(meta.Categories))
	attrs.SetString("update_period", updatePeriod)
	attrs.SetString("update_frequency", updateFrequency)
	attrs.SetString("status", StatusActive)
	attrs.SetNumber("error_count", 0)
	attrs.SetString("last_error_message", "")
	attrs.SetString("last_polled", "")
	attrs.SetBool("push_supported", meta.PushSupported)
	attrs.SetString("push_hub_url", meta.PushHubURL)
	attrs.SetString("push_topic_url", meta.PushTopicURL)
	attrs.SetString("push_last_subscription", "")
	attrs.SetString("version", parsed.Version)

	return attrs
}
