package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/feedpoll/feedpoll/app/store"
)

func TestRegisterStoresMetadata(t *testing.T) {
	server := serveFixture(t, rssFixture)
	gateway := newTestGateway(t)
	registrar := NewRegistrar(newTestFetcher(), gateway)
	ctx := context.Background()

	feedID, err := registrar.Register(ctx, server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if feedID == "" {
		t.Fatal("Expected a generated feed ID")
	}

	meta, err := gateway.Get(ctx, store.FeedKey(feedID))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if meta == nil {
		t.Fatal("Expected metadata record to exist")
	}

	if got := meta.Attrs.GetString("feed_url"); got != server.URL {
		t.Errorf("Expected feed_url %q, got %q", server.URL, got)
	}
	if got := meta.Attrs.GetString("feed_title"); got != "Tech News" {
		t.Errorf("Expected feed_title 'Tech News', got: %s", got)
	}
	if got := meta.Attrs.GetString("status"); got != StatusActive {
		t.Errorf("Expected status active, got: %s", got)
	}
	if got := meta.Attrs.GetNumber("error_count"); got != 0 {
		t.Errorf("Expected error_count 0, got %d", got)
	}
	if got := meta.Attrs.GetString("update_period"); got != "daily" {
		t.Errorf("Expected declared update_period 'daily', got: %s", got)
	}
	if got := meta.Attrs.GetString("update_frequency"); got != "2" {
		t.Errorf("Expected declared update_frequency '2', got: %s", got)
	}
	if !meta.Attrs.GetBool("push_supported") {
		t.Error("Expected push_supported to be recorded")
	}
	if got := meta.Attrs.GetString("version"); got != "rss2.0" {
		t.Errorf("Expected version 'rss2.0', got: %s", got)
	}

	// Never-polled state is the absence of the attributes
	for _, absent := range []string{"last_polled", "last_error_message"} {
		if _, ok := meta.Attrs[absent]; ok {
			t.Errorf("Expected %q to be omitted on a fresh feed", absent)
		}
	}
}

func TestRegisterDefaultsSchedule(t *testing.T) {
	server := serveFixture(t, atomFixture)
	gateway := newTestGateway(t)
	registrar := NewRegistrar(newTestFetcher(), gateway)
	ctx := context.Background()

	feedID, err := registrar.Register(ctx, server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	meta, err := gateway.Get(ctx, store.FeedKey(feedID))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// Atom has no syndication hints; the schedule falls back to defaults
	if got := meta.Attrs.GetString("update_period"); got != "hourly" {
		t.Errorf("Expected default update_period 'hourly', got: %s", got)
	}
	if got := meta.Attrs.GetString("update_frequency"); got != "1" {
		t.Errorf("Expected default update_frequency '1', got: %s", got)
	}
}

func TestRegisterDuplicateURL(t *testing.T) {
	server := serveFixture(t, rssFixture)
	registrar := NewRegistrar(newTestFetcher(), newTestGateway(t))
	ctx := context.Background()

	if _, err := registrar.Register(ctx, server.URL); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_, err := registrar.Register(ctx, server.URL)
	if !errors.Is(err, ErrDuplicateFeed) {
		t.Errorf("Expected ErrDuplicateFeed, got: %v", err)
	}
}

func TestRegisterInvalidFeed(t *testing.T) {
	server := serveFixture(t, "not a feed at all")
	registrar := NewRegistrar(newTestFetcher(), newTestGateway(t))

	_, err := registrar.Register(context.Background(), server.URL)
	if !errors.Is(err, ErrInvalidFeed) {
		t.Errorf("Expected ErrInvalidFeed, got: %v", err)
	}
}

func TestDeactivate(t *testing.T) {
	server := serveFixture(t, rssFixture)
	gateway := newTestGateway(t)
	registrar := NewRegistrar(newTestFetcher(), gateway)
	ctx := context.Background()

	feedID, err := registrar.Register(ctx, server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if err := registrar.Deactivate(ctx, feedID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	meta, err := gateway.Get(ctx, store.FeedKey(feedID))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := meta.Attrs.GetString("status"); got != StatusInactive {
		t.Errorf("Expected status inactive, got: %s", got)
	}
	if got := meta.Attrs.GetString("feed_url"); got != server.URL {
		t.Error("Expected remaining metadata to survive deactivation")
	}
}

func TestDeactivateMissingFeed(t *testing.T) {
	registrar := NewRegistrar(newTestFetcher(), newTestGateway(t))

	err := registrar.Deactivate(context.Background(), "no-such-feed")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}
