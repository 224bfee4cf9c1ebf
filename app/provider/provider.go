package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lysyi3m/claude-rss-reader/app/feed"
)

var (
	ErrConfiguration   = errors.New("provider configuration error")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Provider is a source of feed items. Implementations may also satisfy
// ItemGetter and ReadMarker.
type Provider interface {
	Name() string
	FetchItems(ctx context.Context, limit int) ([]feed.Item, error)
	// TestConnection reports whether the upstream is reachable with the
	// configured credentials. It never fails.
	TestConnection(ctx context.Context) bool
}

type ItemGetter interface {
	// GetItem returns nil, nil when the item does not exist upstream.
	GetItem(ctx context.Context, id string) (*feed.Item, error)
}

type ReadMarker interface {
	MarkAsRead(ctx context.Context, id string) error
}

// FetchError is returned by FetchItems on network, HTTP or parse failures.
type FetchError struct {
	Provider string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch failed: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func fetchError(provider string, format string, args ...any) error {
	return &FetchError{Provider: provider, Err: fmt.Errorf(format, args...)}
}

// Options carries process-wide settings shared by every provider.
type Options struct {
	HTTPClient *http.Client
	UserAgent  string
	Timeout    time.Duration
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}
