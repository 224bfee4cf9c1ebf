package provider

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/lysyi3m/claude-rss-reader/app/cfg"
	"github.com/lysyi3m/claude-rss-reader/app/feed"
)

const (
	ReadwiseName = "readwise"

	readwiseBaseURL = "https://readwise.io/api/v3"
	readwiseAuthURL = "https://readwise.io/api/v2/auth/"
)

var _ Provider = (*Readwise)(nil)
var _ ItemGetter = (*Readwise)(nil)
var _ ReadMarker = (*Readwise)(nil)

// Readwise reads documents from the Readwise Reader API.
type Readwise struct {
	token      string
	location   string
	category   string
	baseURL    string
	authURL    string
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	summarizer *feed.Summarizer
	now        func() time.Time
}

func NewReadwise(config cfg.ProviderConfig, opts Options) (*Readwise, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("%w: readwise token is required", ErrConfiguration)
	}

	r := &Readwise{
		token:      config.Token,
		location:   config.Location,
		category:   config.Category,
		baseURL:    strings.TrimSuffix(cmp.Or(config.BaseURL, readwiseBaseURL), "/"),
		authURL:    readwiseAuthURL,
		httpClient: opts.httpClient(),
		userAgent:  opts.UserAgent,
		timeout:    opts.Timeout,
		summarizer: feed.NewSummarizer(),
		now:        time.Now,
	}

	// A custom base URL points every call, auth check included, at one host.
	if config.BaseURL != "" {
		r.authURL = r.baseURL + "/auth/"
	}

	return r, nil
}

func (r *Readwise) Name() string {
	return ReadwiseName
}

type readwiseList struct {
	Results        []readwiseDocument `json:"results"`
	NextPageCursor *string            `json:"nextPageCursor"`
}

type readwiseDocument struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	URL           string          `json:"url"`
	SourceURL     string          `json:"source_url"`
	Author        string          `json:"author"`
	Summary       string          `json:"summary"`
	Content       string          `json:"content"`
	PublishedDate json.RawMessage `json:"published_date"`
	CreatedAt     string          `json:"created_at"`
	FirstOpenedAt *string         `json:"first_opened_at"`
	Tags          json.RawMessage `json:"tags"`
	ImageURL      string          `json:"image_url"`
	SiteName      string          `json:"site_name"`
}

func (r *Readwise) FetchItems(ctx context.Context, limit int) ([]feed.Item, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if r.location != "" {
		params.Set("location", r.location)
	}
	if r.category != "" {
		params.Set("category", r.category)
	}

	list, status, err := r.list(ctx, params)
	if err != nil {
		return nil, &FetchError{Provider: ReadwiseName, Err: err}
	}
	if status != http.StatusOK {
		return nil, fetchError(ReadwiseName, "Readwise API error: %d", status)
	}

	return lo.Map(list.Results, func(doc readwiseDocument, _ int) feed.Item {
		return r.transformDocument(doc)
	}), nil
}

func (r *Readwise) GetItem(ctx context.Context, id string) (*feed.Item, error) {
	params := url.Values{}
	params.Set("id", feed.LocalOf(id))

	list, status, err := r.list(ctx, params)
	if err != nil {
		return nil, &FetchError{Provider: ReadwiseName, Err: err}
	}
	if status != http.StatusOK || len(list.Results) == 0 {
		return nil, nil
	}

	item := r.transformDocument(list.Results[0])
	return &item, nil
}

func (r *Readwise) MarkAsRead(ctx context.Context, id string) error {
	body, err := json.Marshal(map[string]bool{"seen": true})
	if err != nil {
		return err
	}

	resp, err := r.do(ctx, http.MethodPatch, fmt.Sprintf("%s/update/%s/", r.baseURL, url.PathEscape(feed.LocalOf(id))), body)
	if err != nil {
		return fmt.Errorf("failed to mark %s as read: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to mark %s as read: HTTP error: %d", id, resp.StatusCode)
	}

	return nil
}

func (r *Readwise) TestConnection(ctx context.Context) bool {
	resp, err := r.do(ctx, http.MethodGet, r.authURL, nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusNoContent
}

func (r *Readwise) list(ctx context.Context, params url.Values) (*readwiseList, int, error) {
	resp, err := r.do(ctx, http.MethodGet, r.baseURL+"/list/?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var list readwiseList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}

	return &list, resp.StatusCode, nil
}

// do issues an authenticated request. Closing the response body releases
// the request timeout.
func (r *Readwise) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var cancel context.CancelFunc = func() {}
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Token "+r.token)
	req.Header.Set("Content-Type", "application/json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("request failed: %w", err)
	}

	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

func (r *Readwise) transformDocument(doc readwiseDocument) feed.Item {
	publishedAt := parseReadwiseTime(doc.PublishedDate)
	if publishedAt.IsZero() {
		publishedAt = parseTimeString(doc.CreatedAt)
	}
	if publishedAt.IsZero() {
		publishedAt = r.now()
	}

	return feed.Item{
		ID:          feed.ItemID(ReadwiseName, doc.ID),
		Title:       cmp.Or(doc.Title, "Untitled"),
		URL:         cmp.Or(doc.SourceURL, doc.URL),
		Source:      cmp.Or(doc.SiteName, "Readwise"),
		Summary:     r.summarizer.Run(doc.Summary),
		Content:     doc.Content,
		Author:      doc.Author,
		PublishedAt: publishedAt,
		Read:        doc.FirstOpenedAt != nil,
		Tags:        readwiseTags(doc.Tags),
		ImageURL:    doc.ImageURL,
		ProviderID:  ReadwiseName,
	}
}

// parseReadwiseTime accepts the API's date strings as well as epoch
// milliseconds. Unparseable values yield the zero time.
func parseReadwiseTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return time.UnixMilli(millis).UTC()
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return time.Time{}
	}

	return parseTimeString(value)
}

func parseTimeString(value string) time.Time {
	if value == "" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}

	return time.Time{}
}

// readwiseTags accepts both the object form ({"name": {...}}) and a list of
// {"name": ...} objects.
func readwiseTags(raw json.RawMessage) []string {
	tags := []string{}
	if len(raw) == 0 || string(raw) == "null" {
		return tags
	}

	var byName map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byName); err == nil {
		tags = append(tags, lo.Keys(byName)...)
		slices.Sort(tags)
		return tags
	}

	var list []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, tag := range list {
			if tag.Name != "" {
				tags = append(tags, tag.Name)
			}
		}
	}

	return tags
}
