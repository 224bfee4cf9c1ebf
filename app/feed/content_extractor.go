package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
)

type ContentExtractor struct {
	fetcher *Fetcher
}

func NewContentExtractor(fetcher *Fetcher) *ContentExtractor {
	return &ContentExtractor{
		fetcher: fetcher,
	}
}

// Extract downloads the article at link and returns its readable HTML body.
func (e *ContentExtractor) Extract(ctx context.Context, link string) (string, error) {
	if link == "" {
		return "", fmt.Errorf("item has no link")
	}

	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid article URL: %w", err)
	}

	data, contentType, err := e.fetcher.Get(ctx, link)
	if err != nil {
		return "", fmt.Errorf("failed to fetch article content: %w", err)
	}

	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return "", fmt.Errorf("content type is not HTML: %s", contentType)
	}

	return e.Run(data, pageURL)
}

func (e *ContentExtractor) Run(data []byte, pageURL *url.URL) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	var buf strings.Builder
	if err := article.RenderHTML(&buf); err != nil {
		return "", fmt.Errorf("failed to render content: %w", err)
	}

	content := strings.TrimSpace(buf.String())
	if content == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully", "content_length", len(content))

	return content, nil
}
