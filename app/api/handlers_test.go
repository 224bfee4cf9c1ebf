package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/claude-rss-reader/app/aggregator"
	"github.com/lysyi3m/claude-rss-reader/app/feed"
	"github.com/lysyi3m/claude-rss-reader/app/notify"
)

type fakeFeeds struct {
	mu        sync.Mutex
	items     []feed.Item
	queries   []aggregator.Query
	marked    []string
	refreshed int
	getErr    error
}

func (f *fakeFeeds) GetItems(_ context.Context, q aggregator.Query) []feed.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	start := min(q.Offset, len(f.items))
	end := min(start+q.Limit, len(f.items))
	return append([]feed.Item{}, f.items[start:end]...)
}

func (f *fakeFeeds) GetItem(_ context.Context, id string) (*feed.Item, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, item := range f.items {
		if item.ID == id {
			return &item, nil
		}
	}
	return nil, aggregator.ErrNotFound
}

func (f *fakeFeeds) MarkAsRead(_ context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
}

func (f *fakeFeeds) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
}

func (f *fakeFeeds) Providers() []string {
	return []string{"readwise", "rss"}
}

func (f *fakeFeeds) TestConnections(context.Context) map[string]bool {
	return map[string]bool{"readwise": false, "rss": true}
}

type fakeExtractor struct {
	content string
	err     error
	links   []string
}

func (f *fakeExtractor) Extract(_ context.Context, link string) (string, error) {
	f.links = append(f.links, link)
	return f.content, f.err
}

func testItems(n int) []feed.Item {
	items := make([]feed.Item, 0, n)
	for i := range n {
		items = append(items, feed.Item{
			ID:          feed.ItemID("rss", string(rune('a'+i))),
			Title:       "Item",
			URL:         "https://example.com/" + string(rune('a'+i)),
			PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Tags:        []string{},
			ProviderID:  "rss",
		})
	}
	return items
}

func setupTestServer(feeds *fakeFeeds, extractor ContentExtractor) (*gin.Engine, *notify.Hub) {
	hub := notify.NewHub()
	handler := NewHandler(feeds, hub, extractor, []string{"readwise", "rss"}, 20*time.Millisecond)
	return NewServer(handler), hub
}

func perform(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGetHealth(t *testing.T) {
	r, hub := setupTestServer(&fakeFeeds{}, nil)
	hub.Subscribe("client", func(context.Context, notify.Event) error { return nil })

	w := perform(r, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["clients"])
	assert.Equal(t, float64(2), body["providers"])
	assert.InDelta(t, float64(time.Now().UnixMilli()), body["timestamp"], 5000)
}

func TestGetFeedDefaults(t *testing.T) {
	feeds := &fakeFeeds{items: testItems(30)}
	r, _ := setupTestServer(feeds, nil)

	w := perform(r, http.MethodGet, "/api/feed", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp feedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, defaultFeedLimit)
	assert.True(t, resp.HasMore)
	assert.Equal(t, []aggregator.Query{{Limit: 20}}, feeds.queries)
}

func TestGetFeedParams(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		query   aggregator.Query
		hasMore bool
	}{
		{"provider and page", "/api/feed?provider=rss&limit=2&offset=1", aggregator.Query{Provider: "rss", Limit: 2, Offset: 1}, true},
		{"limit capped", "/api/feed?limit=500", aggregator.Query{Limit: maxFeedLimit}, false},
		{"invalid numbers", "/api/feed?limit=abc&offset=-4", aggregator.Query{Limit: defaultFeedLimit}, false},
		{"last page", "/api/feed?limit=4&offset=3", aggregator.Query{Limit: 4, Offset: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feeds := &fakeFeeds{items: testItems(5)}
			r, _ := setupTestServer(feeds, nil)

			w := perform(r, http.MethodGet, tt.target, "")

			require.Equal(t, http.StatusOK, w.Code)
			var resp feedResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, []aggregator.Query{tt.query}, feeds.queries)
			assert.Equal(t, tt.hasMore, resp.HasMore)
		})
	}
}

func TestGetFeedEmptyListIsArray(t *testing.T) {
	r, _ := setupTestServer(&fakeFeeds{}, nil)

	w := perform(r, http.MethodGet, "/api/feed", "")

	assert.JSONEq(t, `{"items":[],"hasMore":false}`, w.Body.String())
}

func TestGetFeedItem(t *testing.T) {
	feeds := &fakeFeeds{items: testItems(2)}
	r, _ := setupTestServer(feeds, nil)

	w := perform(r, http.MethodGet, "/api/feed/rss:b", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rss:b", decode(t, w)["id"])

	w = perform(r, http.MethodGet, "/api/feed/rss:zzz", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, w.Body.String())
}

func TestGetFeedItemUpstreamError(t *testing.T) {
	r, _ := setupTestServer(&fakeFeeds{getErr: errors.New("boom")}, nil)

	w := perform(r, http.MethodGet, "/api/feed/readwise:1", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetFeedItemFullContent(t *testing.T) {
	feeds := &fakeFeeds{items: testItems(1)}
	extractor := &fakeExtractor{content: "<p>Full article</p>"}
	r, _ := setupTestServer(feeds, extractor)

	w := perform(r, http.MethodGet, "/api/feed/rss:a", "")
	assert.NotContains(t, decode(t, w), "content")
	assert.Empty(t, extractor.links)

	w = perform(r, http.MethodGet, "/api/feed/rss:a?full=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<p>Full article</p>", decode(t, w)["content"])
	assert.Equal(t, []string{"https://example.com/a"}, extractor.links)
}

func TestGetFeedItemFullContentFailureKeepsItem(t *testing.T) {
	feeds := &fakeFeeds{items: testItems(1)}
	r, _ := setupTestServer(feeds, &fakeExtractor{err: errors.New("not html")})

	w := perform(r, http.MethodGet, "/api/feed/rss:a?full=true", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rss:a", decode(t, w)["id"])
}

func TestMarkAsReadAndRefresh(t *testing.T) {
	feeds := &fakeFeeds{items: testItems(1)}
	r, _ := setupTestServer(feeds, nil)

	w := perform(r, http.MethodPost, "/api/feed/rss:a/read", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	assert.Equal(t, []string{"rss:a"}, feeds.marked)

	w = perform(r, http.MethodPost, "/api/feed/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, feeds.refreshed)
	assert.Equal(t, []string{"rss:a"}, feeds.marked)
}

func TestGetProviders(t *testing.T) {
	r, _ := setupTestServer(&fakeFeeds{}, nil)

	w := perform(r, http.MethodGet, "/api/providers", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"providers": [{"name":"readwise","enabled":true},{"name":"rss","enabled":true}],
		"available": ["readwise","rss"]
	}`, w.Body.String())
}

func TestTestProviders(t *testing.T) {
	r, _ := setupTestServer(&fakeFeeds{}, nil)

	w := perform(r, http.MethodGet, "/api/providers/test", "")

	assert.JSONEq(t, `{"results":{"readwise":false,"rss":true}}`, w.Body.String())
}

func TestClaudeReadyBroadcasts(t *testing.T) {
	r, hub := setupTestServer(&fakeFeeds{}, nil)

	var received []notify.Event
	hub.Subscribe("client", func(_ context.Context, event notify.Event) error {
		received = append(received, event)
		return nil
	})

	w := perform(r, http.MethodPost, "/api/claude-ready", `{"event":"stop","cwd":"/home/me/projects/reader/"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"clients":1}`, w.Body.String())

	require.Len(t, received, 1)
	assert.Equal(t, notify.TypeClaudeReady, received[0].Type)
	assert.Equal(t, "stop", received[0].Event)
	assert.Equal(t, "reader", received[0].Field("project"))
	assert.Equal(t, "/home/me/projects/reader/", received[0].Field("cwd"))
}

func TestClaudeReadyWithoutBody(t *testing.T) {
	r, hub := setupTestServer(&fakeFeeds{}, nil)

	var received []notify.Event
	hub.Subscribe("client", func(_ context.Context, event notify.Event) error {
		received = append(received, event)
		return nil
	})

	for _, body := range []string{"", "not json"} {
		w := perform(r, http.MethodPost, "/api/claude-ready", body)
		require.Equal(t, http.StatusOK, w.Code)
	}

	require.Len(t, received, 2)
	for _, event := range received {
		assert.Equal(t, "ready", event.Event)
		assert.Empty(t, event.Payload)
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := setupTestServer(&fakeFeeds{}, nil)

	w := perform(r, http.MethodOptions, "/api/feed", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := setupTestServer(&fakeFeeds{}, nil)

	w := perform(r, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestProjectLabel(t *testing.T) {
	assert.Equal(t, "reader", projectLabel("/home/me/reader"))
	assert.Equal(t, "reader", projectLabel("/home/me/reader/"))
	assert.Equal(t, "reader", projectLabel(`C:\Users\me\reader`))
	assert.Equal(t, "", projectLabel("/"))
}
