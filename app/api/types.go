package api

import (
	"context"
	"time"

	"github.com/lysyi3m/claude-rss-reader/app/aggregator"
	"github.com/lysyi3m/claude-rss-reader/app/feed"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100

	defaultHeartbeatInterval = 30 * time.Second
	streamQueueSize          = 16
)

type FeedService interface {
	GetItems(ctx context.Context, q aggregator.Query) []feed.Item
	GetItem(ctx context.Context, id string) (*feed.Item, error)
	MarkAsRead(ctx context.Context, id string)
	Refresh()
	Providers() []string
	TestConnections(ctx context.Context) map[string]bool
}

type ContentExtractor interface {
	Extract(ctx context.Context, link string) (string, error)
}

var _ FeedService = (*aggregator.Service)(nil)
var _ ContentExtractor = (*feed.ContentExtractor)(nil)

type claudeReadyRequest struct {
	Event string `json:"event"`
	Cwd   string `json:"cwd"`
}

type feedResponse struct {
	Items   []feed.Item `json:"items"`
	HasMore bool        `json:"hasMore"`
}

type providerInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}
