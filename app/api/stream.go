package api

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lysyi3m/claude-rss-reader/app/notify"
)

// stream is one open /events connection. It lives from open until close
// and always releases its ticker and hub subscription.
type stream struct {
	clientID    string
	queue       chan notify.Event
	ticker      *time.Ticker
	unsubscribe func()
	openedAt    time.Time
}

func openStream(hub *notify.Hub, heartbeat time.Duration) *stream {
	s := &stream{
		clientID: uuid.NewString(),
		queue:    make(chan notify.Event, streamQueueSize),
		ticker:   time.NewTicker(heartbeat),
		openedAt: time.Now(),
	}
	s.unsubscribe = hub.Subscribe(s.clientID, s.push)

	slog.Info("Stream client connected", "client_id", s.clientID, "clients", hub.ClientCount())
	return s
}

// push queues an event without blocking the broadcaster.
func (s *stream) push(_ context.Context, event notify.Event) error {
	select {
	case s.queue <- event:
		return nil
	default:
		return notify.ErrBacklog
	}
}

func (s *stream) close() {
	s.ticker.Stop()
	s.unsubscribe()

	slog.Info("Stream client disconnected", "client_id", s.clientID, "duration", time.Since(s.openedAt).Round(time.Second))
}

// Events serves the server-sent event stream: one connected event, then hub
// events and heartbeats until the client goes away or the hub closes.
func (h *Handler) Events(c *gin.Context) {
	s := openStream(h.hub, h.heartbeat)
	defer s.close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(notify.TypeConnected, notify.NewEvent(notify.TypeConnected, "", map[string]any{
		"clientId": s.clientID,
	}))
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-h.hub.Done():
			return false
		case event := <-s.queue:
			c.SSEvent(event.Type, event)
			return true
		case <-s.ticker.C:
			c.SSEvent(notify.TypeHeartbeat, notify.NewEvent(notify.TypeHeartbeat, "", nil))
			return true
		}
	})
}
