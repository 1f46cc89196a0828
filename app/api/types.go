package api

import (
	"github.com/feedpoll/feedpoll/app/feed"
	"github.com/feedpoll/feedpoll/app/queue"
	"github.com/feedpoll/feedpoll/app/store"
)

type Handler struct {
	gateway   *store.Gateway
	registrar *feed.Registrar
	queue     *queue.Queue
}

func NewHandler(gateway *store.Gateway, registrar *feed.Registrar, q *queue.Queue) *Handler {
	return &Handler{
		gateway:   gateway,
		registrar: registrar,
		queue:     q,
	}
}

// CreateFeedRequest is the registration payload.
type CreateFeedRequest struct {
	FeedURL string `json:"feed_url" binding:"required"`
}
