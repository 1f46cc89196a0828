package tasks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/feedpoll/feedpoll/app/feed"
	"github.com/feedpoll/feedpoll/app/health"
	"github.com/feedpoll/feedpoll/app/store"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Tech News</title>
<link>https://example.com</link>
<description>Latest technology news</description>
<item>
<title>First Post</title>
<link>https://example.com/posts/1</link>
<guid isPermaLink="false">post-1</guid>
<description>Body one</description>
</item>
<item>
<title>Second Post</title>
<link>https://example.com/posts/2</link>
<guid isPermaLink="false">post-2</guid>
</item>
</channel>
</rss>`

type testEnv struct {
	gateway  *store.Gateway
	fetcher  *feed.Fetcher
	detector *feed.Detector
	tracker  *health.Tracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.NewConnection(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := store.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	gateway := store.NewGateway(db)
	return &testEnv{
		gateway:  gateway,
		fetcher:  feed.NewFetcher(&http.Client{}, "feedpoll-test/1.0", 5*time.Second),
		detector: feed.NewDetector(gateway),
		tracker:  health.NewTracker(gateway),
	}
}

func (env *testEnv) seedFeed(t *testing.T, feedID, feedURL string) {
	t.Helper()

	meta := store.Record{Key: store.FeedKey(feedID), Attrs: store.Attrs{
		"feed_url":    store.StringValue(feedURL),
		"status":      store.StringValue(feed.StatusActive),
		"error_count": store.NumberValue(0),
	}}
	if err := env.gateway.BatchWrite(context.Background(), []store.Record{meta}); err != nil {
		t.Fatalf("Failed to seed feed metadata: %v", err)
	}
}

func (env *testEnv) newIngestTask(feedID, feedURL string) *IngestFeedTask {
	return NewIngestFeedTask(feedID, feedURL, env.fetcher, env.detector, env.gateway, env.tracker)
}

func TestIngestFeedTaskStoresItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFixture))
	}))
	defer server.Close()

	env := newTestEnv(t)
	env.seedFeed(t, "f1", server.URL)
	ctx := context.Background()

	task := env.newIngestTask("f1", server.URL)
	task.Start()
	if err := task.Execute(ctx); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	items, err := env.gateway.CountItems(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if items != 2 {
		t.Errorf("Expected 2 stored items, got %d", items)
	}

	stored, err := env.gateway.Get(ctx, store.ItemKey("f1", "post-1"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if stored == nil || stored.Attrs.GetString("title") != "First Post" {
		t.Errorf("Unexpected stored item: %+v", stored)
	}

	meta, err := env.gateway.Get(ctx, store.FeedKey("f1"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := meta.Attrs.GetNumber("error_count"); got != 0 {
		t.Errorf("Expected error_count 0 after success, got %d", got)
	}
	if meta.Attrs.GetString("last_polled") == "" {
		t.Error("Expected last_polled to be recorded")
	}
}

func TestIngestFeedTaskIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFixture))
	}))
	defer server.Close()

	env := newTestEnv(t)
	env.seedFeed(t, "f1", server.URL)
	ctx := context.Background()

	// Two runs over an unchanged source converge on the same stored state
	for i := 0; i < 2; i++ {
		task := env.newIngestTask("f1", server.URL)
		task.Start()
		if err := task.Execute(ctx); err != nil {
			t.Fatalf("Run %d: expected no error, got: %v", i+1, err)
		}
	}

	items, err := env.gateway.CountItems(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if items != 2 {
		t.Errorf("Expected 2 stored items after repeated runs, got %d", items)
	}
}

func TestIngestFeedTaskFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	env := newTestEnv(t)
	env.seedFeed(t, "f1", server.URL)
	ctx := context.Background()

	task := env.newIngestTask("f1", server.URL)
	task.Start()
	if err := task.Execute(ctx); err == nil {
		t.Fatal("Expected error for unreachable feed")
	}

	meta, err := env.gateway.Get(ctx, store.FeedKey("f1"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := meta.Attrs.GetNumber("error_count"); got != 1 {
		t.Errorf("Expected error_count 1 after failure, got %d", got)
	}
	if meta.Attrs.GetString("last_error_message") == "" {
		t.Error("Expected failure message to be recorded")
	}
	if meta.Attrs.GetString("last_polled") == "" {
		t.Error("Expected last_polled to advance even on failure")
	}

	items, err := env.gateway.CountItems(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if items != 0 {
		t.Errorf("Expected no items after failed fetch, got %d", items)
	}
}

func TestIngestFeedTaskCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	env.seedFeed(t, "f1", "https://example.com/feed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := env.newIngestTask("f1", "https://example.com/feed")
	if err := task.Execute(ctx); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
