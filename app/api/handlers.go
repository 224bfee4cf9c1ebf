package api

import (
	"cmp"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/lysyi3m/claude-rss-reader/app/aggregator"
	"github.com/lysyi3m/claude-rss-reader/app/notify"
)

type Handler struct {
	feeds     FeedService
	hub       *notify.Hub
	extractor ContentExtractor
	available []string
	heartbeat time.Duration
}

// NewHandler wires the HTTP handlers. extractor may be nil, which disables
// full content extraction.
func NewHandler(feeds FeedService, hub *notify.Hub, extractor ContentExtractor,
	available []string, heartbeat time.Duration) *Handler {
	return &Handler{
		feeds:     feeds,
		hub:       hub,
		extractor: extractor,
		available: available,
		heartbeat: cmp.Or(heartbeat, defaultHeartbeatInterval),
	}
}

// ClaudeReady ingests one hook event and broadcasts it to every stream
// client. The body is optional.
func (h *Handler) ClaudeReady(c *gin.Context) {
	var req claudeReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Debug("Ignoring claude-ready body", "error", err)
	}

	payload := map[string]any{}
	if req.Cwd != "" {
		payload["cwd"] = req.Cwd
		if project := projectLabel(req.Cwd); project != "" {
			payload["project"] = project
		}
	}

	event := notify.NewEvent(notify.TypeClaudeReady, cmp.Or(req.Event, "ready"), payload)
	delivered := h.hub.Broadcast(c.Request.Context(), event)
	clients := h.hub.ClientCount()

	slog.Info("Claude notification", "event", event.Event, "project", event.Field("project"), "clients", clients, "delivered", delivered)

	c.JSON(http.StatusOK, gin.H{"success": true, "clients": clients})
}

func (h *Handler) GetFeed(c *gin.Context) {
	limit := queryInt(c, "limit", defaultFeedLimit)
	limit = min(max(limit, 0), maxFeedLimit)
	offset := max(queryInt(c, "offset", 0), 0)

	items := h.feeds.GetItems(c.Request.Context(), aggregator.Query{
		Provider: c.Query("provider"),
		Limit:    limit,
		Offset:   offset,
	})

	c.JSON(http.StatusOK, feedResponse{
		Items:   items,
		HasMore: limit > 0 && len(items) == limit,
	})
}

func (h *Handler) GetFeedItem(c *gin.Context) {
	id := c.Param("id")

	item, err := h.feeds.GetItem(c.Request.Context(), id)
	if errors.Is(err, aggregator.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to get feed item", "id", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch item"})
		return
	}

	if wantsFullContent(c) && item.Content == "" && item.URL != "" && h.extractor != nil {
		content, err := h.extractor.Extract(c.Request.Context(), item.URL)
		if err != nil {
			slog.Warn("Content extraction failed", "id", id, "url", item.URL, "error", err)
		} else {
			item.Content = content
		}
	}

	c.JSON(http.StatusOK, item)
}

func (h *Handler) MarkAsRead(c *gin.Context) {
	h.feeds.MarkAsRead(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) Refresh(c *gin.Context) {
	h.feeds.Refresh()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) GetProviders(c *gin.Context) {
	providers := lo.Map(h.feeds.Providers(), func(name string, _ int) providerInfo {
		return providerInfo{Name: name, Enabled: true}
	})

	c.JSON(http.StatusOK, gin.H{
		"providers": providers,
		"available": h.available,
	})
}

func (h *Handler) TestProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"results": h.feeds.TestConnections(c.Request.Context())})
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
		"clients":   h.hub.ClientCount(),
		"providers": len(h.feeds.Providers()),
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return value
}

func wantsFullContent(c *gin.Context) bool {
	full, _ := strconv.ParseBool(c.Query("full"))
	return full
}

// projectLabel returns the last segment of a working directory path.
func projectLabel(cwd string) string {
	cleaned := path.Clean(strings.ReplaceAll(cwd, `\`, "/"))
	label := path.Base(cleaned)
	if label == "/" || label == "." {
		return ""
	}
	return label
}
