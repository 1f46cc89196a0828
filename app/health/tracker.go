package health

import (
	"context"
	"fmt"
	"time"

	"github.com/feedpoll/feedpoll/app/store"
)

// Tracker records per-feed poll outcomes on the feed's metadata record.
// Both outcomes advance last_polled unconditionally so the scheduler never
// re-selects a feed that was just attempted within the same tick, and both
// are idempotent overwrites that are safe to repeat on redelivery.
type Tracker struct {
	gateway *store.Gateway
}

func NewTracker(gateway *store.Gateway) *Tracker {
	return &Tracker{gateway: gateway}
}

// OnSuccess resets the feed's error state and records the poll time.
func (t *Tracker) OnSuccess(ctx context.Context, feedID string, now time.Time) error {
	set := store.Attrs{
		"error_count":        store.NumberValue(0),
		"last_error_message": store.StringValue(""),
		"last_polled":        store.StringValue(now.UTC().Format(store.TimeFormat)),
	}

	if err := t.gateway.UpdateMeta(ctx, store.FeedKey(feedID), set, nil); err != nil {
		return fmt.Errorf("failed to record poll success: %w", err)
	}
	return nil
}

// OnFailure increments the feed's error count, stores the failure message
// and records the poll time.
func (t *Tracker) OnFailure(ctx context.Context, feedID, message string, now time.Time) error {
	set := store.Attrs{
		"last_error_message": store.StringValue(message),
		"last_polled":        store.StringValue(now.UTC().Format(store.TimeFormat)),
	}
	add := map[string]int64{"error_count": 1}

	if err := t.gateway.UpdateMeta(ctx, store.FeedKey(feedID), set, add); err != nil {
		return fmt.Errorf("failed to record poll failure: %w", err)
	}
	return nil
}
