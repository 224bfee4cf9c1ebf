package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrBacklog is returned by a subscriber that cannot keep up.
var ErrBacklog = errors.New("subscriber backlog full")

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "claude_rss_stream_clients",
		Help: "Number of subscribed stream clients",
	})

	broadcastEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claude_rss_broadcast_events_total",
		Help: "Events broadcast by type",
	}, []string{"type"})

	deliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claude_rss_delivery_failures_total",
		Help: "Event deliveries that failed or panicked",
	})
)

// Subscriber pushes one event to a client.
type Subscriber func(ctx context.Context, event Event) error

type subscription struct {
	clientID string
	push     Subscriber
}

// Hub keeps the set of live stream clients and fans events out to them.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription

	done      chan struct{}
	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*subscription),
		done:        make(chan struct{}),
	}
}

// Subscribe registers push under clientID, replacing any previous
// subscriber with the same id. The returned func removes it and may be called
// more than once.
func (h *Hub) Subscribe(clientID string, push Subscriber) func() {
	sub := &subscription{clientID: clientID, push: push}

	h.mu.Lock()
	h.subscribers[clientID] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	connectedClients.Set(float64(count))
	slog.Debug("Client subscribed", "client_id", clientID, "clients", count)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if h.subscribers[clientID] == sub {
				delete(h.subscribers, clientID)
			}
			count := len(h.subscribers)
			h.mu.Unlock()

			connectedClients.Set(float64(count))
			slog.Debug("Client unsubscribed", "client_id", clientID, "clients", count)
		})
	}
}

// Broadcast delivers event to every current subscriber concurrently and
// returns once all of them were attempted. Failing subscribers are logged
// and stay subscribed. It returns the number of successful deliveries.
func (h *Hub) Broadcast(ctx context.Context, event Event) int {
	h.mu.RLock()
	snapshot := make([]*subscription, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	broadcastEvents.WithLabelValues(event.Type).Inc()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, sub := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := deliver(ctx, sub, event); err != nil {
				deliveryFailures.Inc()
				slog.Warn("Failed to deliver event", "client_id", sub.clientID, "type", event.Type, "error", err)
				return
			}

			mu.Lock()
			delivered++
			mu.Unlock()
		}()
	}
	wg.Wait()

	slog.Debug("Event broadcast", "type", event.Type, "clients", len(snapshot), "delivered", delivered)
	return delivered
}

func deliver(ctx context.Context, sub *subscription, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()

	return sub.push(ctx, event)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close signals open streams to finish. Subscribers are removed by their
// own unsubscribe calls.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) Done() <-chan struct{} {
	return h.done
}
