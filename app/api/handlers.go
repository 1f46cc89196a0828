package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedpoll/feedpoll/app/feed"
	"github.com/feedpoll/feedpoll/app/queue"
	"github.com/feedpoll/feedpoll/app/store"
)

// CreateFeed registers a new feed and enqueues its first poll.
func (h *Handler) CreateFeed(c *gin.Context) {
	var req CreateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid feed_url"})
		return
	}

	parsed, err := url.ParseRequestURI(req.FeedURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feed_url must be an absolute http(s) URL"})
		return
	}

	feedID, err := h.registrar.Register(c.Request.Context(), req.FeedURL)
	if err != nil {
		switch {
		case errors.Is(err, feed.ErrDuplicateFeed):
			c.JSON(http.StatusConflict, gin.H{"error": "A feed with this URL already exists"})
		case errors.Is(err, feed.ErrInvalidFeed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed URL"})
		default:
			slog.Error("Feed registration failed", "url", req.FeedURL, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	// First poll happens right away instead of waiting for the next
	// schedule scan.
	task := queue.Task{FeedID: feedID, FeedURL: req.FeedURL}
	if err := h.queue.Publish(task); err != nil {
		slog.Warn("Failed to enqueue initial fetch task", "feed", feedID, "error", err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"feed_id": feedID,
		"message": "Feed added successfully",
	})
}

// DeleteFeed deactivates a feed. Items and poll history are retained.
func (h *Handler) DeleteFeed(c *gin.Context) {
	feedID := c.Param("id")
	if feedID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing feed id parameter"})
		return
	}

	err := h.registrar.Deactivate(c.Request.Context(), feedID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}
	if err != nil {
		slog.Error("Feed deactivation failed", "feed", feedID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Feed deleted successfully"})
}

// ListFeeds returns a summary of every registered feed.
func (h *Handler) ListFeeds(c *gin.Context) {
	metas, err := h.gateway.ScanMeta(c.Request.Context())
	if err != nil {
		slog.Error("Failed to scan feed metadata", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	feeds := make([]gin.H, 0, len(metas))
	for _, meta := range metas {
		feeds = append(feeds, gin.H{
			"feed_id":          meta.Key.FeedID(),
			"feed_url":         meta.Attrs.GetString("feed_url"),
			"title":            meta.Attrs.GetString("feed_title"),
			"status":           meta.Attrs.GetString("status"),
			"error_count":      meta.Attrs.GetNumber("error_count"),
			"last_polled":      meta.Attrs.GetString("last_polled"),
			"update_period":    meta.Attrs.GetString("update_period"),
			"update_frequency": meta.Attrs.GetString("update_frequency"),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

// GetFeed returns the full metadata document of one feed.
func (h *Handler) GetFeed(c *gin.Context) {
	feedID := c.Param("id")
	if feedID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing feed id parameter"})
		return
	}

	meta, err := h.gateway.Get(c.Request.Context(), store.FeedKey(feedID))
	if err != nil {
		slog.Error("Failed to get feed metadata", "feed", feedID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if meta == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feed_id":            feedID,
		"feed_url":           meta.Attrs.GetString("feed_url"),
		"title":              meta.Attrs.GetString("feed_title"),
		"link":               meta.Attrs.GetString("feed_link"),
		"description":        meta.Attrs.GetString("feed_description"),
		"author":             meta.Attrs.GetString("feed_author"),
		"language":           meta.Attrs.GetString("feed_language"),
		"image":              meta.Attrs.GetString("feed_image"),
		"categories":         meta.Attrs.GetStringSet("categories"),
		"version":            meta.Attrs.GetString("version"),
		"status":             meta.Attrs.GetString("status"),
		"error_count":        meta.Attrs.GetNumber("error_count"),
		"last_error_message": meta.Attrs.GetString("last_error_message"),
		"last_polled":        meta.Attrs.GetString("last_polled"),
		"update_period":      meta.Attrs.GetString("update_period"),
		"update_frequency":   meta.Attrs.GetString("update_frequency"),
		"push_supported":     meta.Attrs.GetBool("push_supported"),
		"push_hub_url":       meta.Attrs.GetString("push_hub_url"),
		"push_topic_url":     meta.Attrs.GetString("push_topic_url"),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.gateway.CountFeeds(c.Request.Context()); err == nil {
		health["feeds"] = feedCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := gin.H{}

	if feedCount, err := h.gateway.CountFeeds(c.Request.Context()); err == nil {
		stats["feeds"] = feedCount
	}
	if itemCount, err := h.gateway.CountItems(c.Request.Context()); err == nil {
		stats["items"] = itemCount
	}

	c.JSON(http.StatusOK, stats)
}
