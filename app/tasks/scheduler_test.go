package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/feedpoll/feedpoll/app/feed"
	"github.com/feedpoll/feedpoll/app/queue"
	"github.com/feedpoll/feedpoll/app/store"
)

func newTestScheduler(t *testing.T, env *testEnv, q *queue.Queue) *Scheduler {
	t.Helper()

	s := NewScheduler(env.gateway, q, env.fetcher, env.detector, env.tracker, time.Minute, 1)
	t.Cleanup(s.Stop)
	return s
}

func TestRunScanEnqueuesDueFeeds(t *testing.T) {
	env := newTestEnv(t)
	q := queue.New(10)
	defer q.Close()

	now := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

	metas := []store.Record{
		// Never polled: due
		{Key: store.FeedKey("due"), Attrs: store.Attrs{
			"feed_url": store.StringValue("https://due.example.com/feed"),
			"status":   store.StringValue(feed.StatusActive),
		}},
		// Deactivated: never scheduled
		{Key: store.FeedKey("inactive"), Attrs: store.Attrs{
			"feed_url": store.StringValue("https://inactive.example.com/feed"),
			"status":   store.StringValue(feed.StatusInactive),
		}},
		// Polled recently: not yet due
		{Key: store.FeedKey("fresh"), Attrs: store.Attrs{
			"feed_url":         store.StringValue("https://fresh.example.com/feed"),
			"status":           store.StringValue(feed.StatusActive),
			"update_period":    store.StringValue("hourly"),
			"update_frequency": store.StringValue("1"),
			"last_polled":      store.StringValue(now.Add(-10 * time.Minute).Format(store.TimeFormat)),
		}},
		// Metadata without a URL cannot be fetched
		{Key: store.FeedKey("broken"), Attrs: store.Attrs{
			"status": store.StringValue(feed.StatusActive),
		}},
	}
	if err := env.gateway.BatchWrite(context.Background(), metas); err != nil {
		t.Fatalf("Failed to seed feed metadata: %v", err)
	}

	scheduler := newTestScheduler(t, env, q)
	scheduler.RunScan(now)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Expected one enqueued task, got: %v", err)
	}
	task, err := msg.Task()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if task.FeedID != "due" || task.FeedURL != "https://due.example.com/feed" {
		t.Errorf("Unexpected task: %+v", task)
	}

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer shortCancel()
	if _, err := q.Receive(shortCtx); err == nil {
		t.Error("Expected exactly one task to be enqueued")
	}
}

func TestRunScanOverdueFeed(t *testing.T) {
	env := newTestEnv(t)
	q := queue.New(10)
	defer q.Close()

	now := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

	meta := store.Record{Key: store.FeedKey("overdue"), Attrs: store.Attrs{
		"feed_url":         store.StringValue("https://overdue.example.com/feed"),
		"status":           store.StringValue(feed.StatusActive),
		"update_period":    store.StringValue("daily"),
		"update_frequency": store.StringValue("1"),
		"last_polled":      store.StringValue(now.Add(-25 * time.Hour).Format(store.TimeFormat)),
	}}
	if err := env.gateway.BatchWrite(context.Background(), []store.Record{meta}); err != nil {
		t.Fatalf("Failed to seed feed metadata: %v", err)
	}

	scheduler := newTestScheduler(t, env, q)
	scheduler.RunScan(now)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Expected an enqueued task, got: %v", err)
	}
	task, err := msg.Task()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if task.FeedID != "overdue" {
		t.Errorf("Unexpected task: %+v", task)
	}
}

func TestProcessMessageDropsMalformedTask(t *testing.T) {
	env := newTestEnv(t)
	q := queue.New(10)
	defer q.Close()

	scheduler := newTestScheduler(t, env, q)
	scheduler.processMessage(0, &queue.Message{Body: []byte("not json"), ReceiveCount: 1})

	// A malformed message is acknowledged, never redelivered
	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	if _, err := q.Receive(ctx); err == nil {
		t.Error("Expected malformed message to be dropped")
	}
}
