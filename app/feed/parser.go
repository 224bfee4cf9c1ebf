package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
	now          func() time.Time
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		now:          time.Now,
	}
}

// Run detects RSS or Atom, then returns the channel metadata and its entries in
// document order.
func (p *Parser) Run(data []byte) (*Metadata, []Entry, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       strings.TrimSpace(feed.Title),
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
	}

	parsedAt := p.now()
	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, p.normalizeItem(item, parsedAt))
	}

	return metadata, entries, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, parsedAt time.Time) Entry {
	entry := Entry{
		GUID:        strings.TrimSpace(item.GUID),
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		Description: item.Description,
		Content:     item.Content,
		Author:      p.extractAuthor(item),
		PublishedAt: parsedAt,
	}

	switch {
	case item.PublishedParsed != nil:
		entry.PublishedAt = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		entry.PublishedAt = *item.UpdatedParsed
	}

	if item.Categories != nil {
		entry.Categories = item.Categories
	}

	if item.Image != nil {
		entry.ImageURL = item.Image.URL
	}

	return entry
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	for _, author := range item.Authors {
		if author == nil {
			continue
		}
		if name := cmp.Or(strings.TrimSpace(author.Name), strings.TrimSpace(author.Email)); name != "" {
			return name
		}
	}

	if item.Author != nil {
		return cmp.Or(strings.TrimSpace(item.Author.Name), strings.TrimSpace(item.Author.Email))
	}

	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return strings.TrimSpace(item.DublinCoreExt.Creator[0])
	}

	return ""
}
