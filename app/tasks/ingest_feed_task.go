package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedpoll/feedpoll/app/feed"
	"github.com/feedpoll/feedpoll/app/health"
	"github.com/feedpoll/feedpoll/app/store"
)

// IngestFeedTask runs one poll of one feed: fetch, normalize, diff against
// stored state, persist the delta, record the outcome. Errors returned from
// Execute mean the attempt should be redelivered; the pipeline is safe to
// re-run because item writes are idempotent upserts and health updates are
// idempotent overwrites.
type IngestFeedTask struct {
	Task
	FeedURL  string
	fetcher  *feed.Fetcher
	detector *feed.Detector
	gateway  *store.Gateway
	tracker  *health.Tracker
}

func NewIngestFeedTask(feedID, feedURL string, fetcher *feed.Fetcher,
	detector *feed.Detector, gateway *store.Gateway, tracker *health.Tracker) *IngestFeedTask {
	return &IngestFeedTask{
		Task:     NewTask(TaskTypeIngestFeed, feedID),
		FeedURL:  feedURL,
		fetcher:  fetcher,
		detector: detector,
		gateway:  gateway,
		tracker:  tracker,
	}
}

func (t *IngestFeedTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	now := time.Now().UTC()

	parsed, err := t.fetcher.Run(ctx, t.FeedURL)
	if err != nil {
		// No data to persist; record the failed poll and let the queue
		// decide whether to redeliver.
		t.recordFailure(ctx, err, now)
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	records := feed.NormalizeItems(t.FeedID, parsed.Entries)

	writeSet, err := t.detector.Detect(ctx, records)
	if err != nil {
		t.recordFailure(ctx, err, now)
		return fmt.Errorf("failed to detect changes: %w", err)
	}

	if len(writeSet) > 0 {
		if err := t.gateway.BatchWrite(ctx, writeSet); err != nil {
			t.recordFailure(ctx, err, now)
			return fmt.Errorf("failed to store items: %w", err)
		}
	}

	if err := t.tracker.OnSuccess(ctx, t.FeedID, now); err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", "IngestFeed",
		"feed", t.FeedID,
		"duration", t.GetDuration(),
		"total", len(records),
		"written", len(writeSet))

	return nil
}

// recordFailure is best effort: a feed whose metadata record is gone (e.g.
// a task raced a deactivation) should not mask the original error.
func (t *IngestFeedTask) recordFailure(ctx context.Context, cause error, now time.Time) {
	if err := t.tracker.OnFailure(ctx, t.FeedID, cause.Error(), now); err != nil {
		slog.Error("Failed to record poll failure", "feed", t.FeedID, "error", err)
	}
}
