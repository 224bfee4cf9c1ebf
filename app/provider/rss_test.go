package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/claude-rss-reader/app/cfg"
)

func rssDocument(title string, items ...string) string {
	body := ""
	for _, item := range items {
		body += item
	}
	return fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>%s</title><link>https://example.com</link>%s</channel></rss>`, title, body)
}

func rssItem(guid, title, pubDate string) string {
	return fmt.Sprintf(`<item><guid>%s</guid><title>%s</title><link>https://example.com/%s</link>
<description>&lt;p&gt;About %s&lt;/p&gt;</description><pubDate>%s</pubDate></item>`, guid, title, guid, title, pubDate)
}

func newFeedServer(t *testing.T, routes map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		body, ok := routes[req.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, &hits
}

func newTestRSS(t *testing.T, server *httptest.Server, paths ...string) *RSS {
	t.Helper()

	feeds := make([]string, 0, len(paths))
	for _, path := range paths {
		feeds = append(feeds, server.URL+path)
	}

	r, err := NewRSS(cfg.ProviderConfig{Enabled: true, Feeds: feeds}, Options{
		HTTPClient: server.Client(),
		UserAgent:  "Test Agent",
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	return r
}

func TestNewRSSValidation(t *testing.T) {
	_, err := NewRSS(cfg.ProviderConfig{Enabled: true}, Options{})
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = NewRSS(cfg.ProviderConfig{Enabled: true, Feeds: []string{"not a url"}}, Options{})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestRSSFetchItemsMergesFeedsNewestFirst(t *testing.T) {
	server, _ := newFeedServer(t, map[string]string{
		"/a.xml": rssDocument("Feed A",
			rssItem("a1", "A One", "Mon, 03 Jul 2023 10:00:00 GMT"),
			rssItem("a2", "A Two", "Mon, 03 Jul 2023 12:00:00 GMT"),
		),
		"/b.xml": rssDocument("Feed B",
			rssItem("b1", "B One", "Mon, 03 Jul 2023 11:00:00 GMT"),
		),
	})
	r := newTestRSS(t, server, "/a.xml", "/b.xml")

	items, err := r.FetchItems(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "A Two", items[0].Title)
	assert.Equal(t, "B One", items[1].Title)
	assert.Equal(t, "A One", items[2].Title)

	assert.Equal(t, "Feed B", items[1].Source)
	assert.Equal(t, "About B One", items[1].Summary)
	assert.Equal(t, RSSName, items[1].ProviderID)
	assert.Regexp(t, `^rss:[0-9a-z]+$`, items[1].ID)
	assert.Equal(t, []string{}, items[1].Tags)
}

func TestRSSFetchItemsLimit(t *testing.T) {
	server, _ := newFeedServer(t, map[string]string{
		"/a.xml": rssDocument("Feed A",
			rssItem("a1", "A One", "Mon, 03 Jul 2023 10:00:00 GMT"),
			rssItem("a2", "A Two", "Mon, 03 Jul 2023 12:00:00 GMT"),
			rssItem("a3", "A Three", "Mon, 03 Jul 2023 14:00:00 GMT"),
		),
	})
	r := newTestRSS(t, server, "/a.xml")

	items, err := r.FetchItems(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A Three", items[0].Title)
	assert.Equal(t, "A Two", items[1].Title)
}

func TestRSSFetchItemsSkipsFailingFeed(t *testing.T) {
	server, _ := newFeedServer(t, map[string]string{
		"/a.xml": rssDocument("Feed A", rssItem("a1", "A One", "Mon, 03 Jul 2023 10:00:00 GMT")),
	})
	r := newTestRSS(t, server, "/a.xml", "/broken.xml")

	items, err := r.FetchItems(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A One", items[0].Title)
}

func TestRSSFetchItemsAllFeedsFail(t *testing.T) {
	server, _ := newFeedServer(t, map[string]string{})
	r := newTestRSS(t, server, "/one.xml", "/two.xml")

	_, err := r.FetchItems(context.Background(), 10)
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, RSSName, fetchErr.Provider)
}

func TestRSSStableIDsAndReadState(t *testing.T) {
	server, _ := newFeedServer(t, map[string]string{
		"/a.xml": rssDocument("Feed A",
			rssItem("a1", "A One", "Mon, 03 Jul 2023 10:00:00 GMT"),
			rssItem("a2", "A Two", "Mon, 03 Jul 2023 12:00:00 GMT"),
		),
	})
	r := newTestRSS(t, server, "/a.xml")

	first, err := r.FetchItems(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.False(t, first[0].Read)

	require.NoError(t, r.MarkAsRead(context.Background(), first[0].ID))

	second, err := r.FetchItems(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, second, 2)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
	assert.True(t, second[0].Read)
	assert.False(t, second[1].Read)
}

func TestRSSTestConnection(t *testing.T) {
	server, _ := newFeedServer(t, map[string]string{
		"/a.xml": rssDocument("Feed A"),
	})

	assert.True(t, newTestRSS(t, server, "/a.xml").TestConnection(context.Background()))
	assert.False(t, newTestRSS(t, server, "/missing.xml").TestConnection(context.Background()))
}

func TestRSSEntriesWithoutIdentityKeepDistinctIDs(t *testing.T) {
	server, _ := newFeedServer(t, map[string]string{
		"/a.xml": rssDocument("Feed A",
			`<item><description>Only a description</description><pubDate>Mon, 03 Jul 2023 12:00:00 GMT</pubDate></item>`,
			`<item><pubDate>Mon, 03 Jul 2023 11:00:00 GMT</pubDate></item>`,
			`<item><pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate></item>`,
		),
	})
	r := newTestRSS(t, server, "/a.xml")

	first, err := r.FetchItems(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, first, 3)

	seen := map[string]bool{}
	for _, item := range first {
		assert.False(t, seen[item.ID], "duplicate id %s", item.ID)
		seen[item.ID] = true
	}

	second, err := r.FetchItems(context.Background(), 10)
	require.NoError(t, err)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}
