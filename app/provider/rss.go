package provider

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/claude-rss-reader/app/cfg"
	"github.com/lysyi3m/claude-rss-reader/app/feed"
)

const (
	RSSName = "rss"

	// readSetSize bounds the in-memory read state. Oldest entries fall out
	// first.
	readSetSize = 10000
)

var _ Provider = (*RSS)(nil)
var _ ReadMarker = (*RSS)(nil)

// RSS fetches a fixed list of RSS/Atom feeds. Read state lives in memory only
// and is lost on restart.
type RSS struct {
	feeds      []string
	fetcher    *feed.Fetcher
	parser     *feed.Parser
	summarizer *feed.Summarizer
	readItems  *lru.Cache[string, struct{}]
}

func NewRSS(config cfg.ProviderConfig, opts Options) (*RSS, error) {
	if len(config.Feeds) == 0 {
		return nil, fmt.Errorf("%w: at least one RSS feed URL is required", ErrConfiguration)
	}

	for _, feedURL := range config.Feeds {
		if _, err := url.ParseRequestURI(feedURL); err != nil {
			return nil, fmt.Errorf("%w: invalid feed URL %q: %v", ErrConfiguration, feedURL, err)
		}
	}

	readItems, err := lru.New[string, struct{}](readSetSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create read set: %w", err)
	}

	return &RSS{
		feeds:      slices.Clone(config.Feeds),
		fetcher:    feed.NewFetcher(opts.httpClient(), opts.UserAgent, opts.Timeout),
		parser:     feed.NewParser(),
		summarizer: feed.NewSummarizer(),
		readItems:  readItems,
	}, nil
}

func (r *RSS) Name() string {
	return RSSName
}

// FetchItems fetches every feed concurrently and returns the newest limit
// items. A failing feed is logged and skipped; the call fails only when no
// feed could be read.
func (r *RSS) FetchItems(ctx context.Context, limit int) ([]feed.Item, error) {
	results := make([][]feed.Item, len(r.feeds))
	failures := make([]error, len(r.feeds))

	var g errgroup.Group
	for i, feedURL := range r.feeds {
		g.Go(func() error {
			items, err := r.fetchFeed(ctx, feedURL)
			if err != nil {
				slog.Error("Failed to fetch feed", "provider", RSSName, "url", feedURL, "error", err)
				failures[i] = err
				return nil
			}
			results[i] = items
			return nil
		})
	}
	g.Wait()

	var allItems []feed.Item
	failed := 0
	for i := range r.feeds {
		if failures[i] != nil {
			failed++
			continue
		}
		allItems = append(allItems, results[i]...)
	}

	if failed == len(r.feeds) {
		return nil, fetchError(RSSName, "all %d feeds failed, first error: %w", failed, failures[0])
	}

	slices.SortStableFunc(allItems, func(a, b feed.Item) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	if limit > 0 && len(allItems) > limit {
		allItems = allItems[:limit]
	}

	return allItems, nil
}

func (r *RSS) MarkAsRead(_ context.Context, id string) error {
	r.readItems.Add(id, struct{}{})
	return nil
}

func (r *RSS) TestConnection(ctx context.Context) bool {
	_, err := r.fetchFeed(ctx, r.feeds[0])
	return err == nil
}

func (r *RSS) fetchFeed(ctx context.Context, feedURL string) ([]feed.Item, error) {
	data, _, err := r.fetcher.Get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	metadata, entries, err := r.parser.Run(data)
	if err != nil {
		return nil, err
	}

	source := metadata.Title
	if source == "" {
		if u, err := url.Parse(feedURL); err == nil {
			source = u.Hostname()
		}
	}

	items := make([]feed.Item, 0, len(entries))
	for i, entry := range entries {
		// The position is the last resort for entries that carry nothing else.
		id := feed.ItemID(RSSName, feed.LocalID(entry.GUID, entry.Link, entry.Title,
			entry.Description, entry.Content, fmt.Sprintf("%s#%d", feedURL, i)))

		tags := entry.Categories
		if tags == nil {
			tags = []string{}
		}

		items = append(items, feed.Item{
			ID:          id,
			Title:       cmp.Or(entry.Title, "Untitled"),
			URL:         cmp.Or(entry.Link, feedURL),
			Source:      source,
			Summary:     r.summarizer.Run(cmp.Or(entry.Description, entry.Content)),
			Content:     entry.Content,
			Author:      entry.Author,
			PublishedAt: entry.PublishedAt,
			Read:        r.readItems.Contains(id),
			Tags:        tags,
			ImageURL:    entry.ImageURL,
			ProviderID:  RSSName,
		})
	}

	return items, nil
}
