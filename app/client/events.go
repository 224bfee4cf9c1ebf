package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lysyi3m/claude-rss-reader/app/notify"
)

const maxEventSize = 1024 * 1024

// Watch follows the server's event stream and calls handle for every event,
// reconnecting with exponential backoff until ctx is done.
func (c *Client) Watch(ctx context.Context, handle func(notify.Event)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	return c.watch(ctx, b, handle)
}

func (c *Client) watch(ctx context.Context, b backoff.BackOff, handle func(notify.Event)) error {
	for {
		err := c.stream(ctx, func(event notify.Event) {
			if event.Type == notify.TypeConnected {
				b.Reset()
			}
			handle(event)
		})

		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("event stream closed: %w", err)
		}

		slog.Warn("Event stream disconnected, reconnecting", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// stream reads one connection until it ends.
func (c *Client) stream(ctx context.Context, handle func(notify.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// The shared client's timeout would cut the stream off.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if len(data) > 0 {
				dispatch(name, strings.Join(data, "\n"), handle)
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
			// comment line
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return fmt.Errorf("stream ended")
}

func dispatch(name, data string, handle func(notify.Event)) {
	var event notify.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		slog.Debug("Skipping malformed event", "event", name, "error", err)
		return
	}

	handle(event)
}
