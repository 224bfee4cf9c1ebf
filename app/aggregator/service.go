package aggregator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/lysyi3m/claude-rss-reader/app/feed"
	"github.com/lysyi3m/claude-rss-reader/app/provider"
)

// AllKey is the cache key of the merged feed across every provider.
const AllKey = "all"

const readOverlaySize = 10000

var ErrNotFound = errors.New("item not found")

type Query struct {
	Provider string
	Limit    int
	Offset   int
}

type entry struct {
	items     []feed.Item
	fetchedAt time.Time
}

// Service merges provider results into a time-ordered feed and caches it per
// provider scope. Entries are never modified in place: every change installs
// a new entry.
type Service struct {
	providers  map[string]provider.Provider
	names      []string
	ttl        time.Duration
	fetchLimit int
	now        func() time.Time

	mu         sync.RWMutex
	entries    map[string]entry
	generation uint64

	readIDs *lru.Cache[string, struct{}]
	group   singleflight.Group
}

func NewService(providers []provider.Provider, ttl time.Duration, fetchLimit int) *Service {
	readIDs, _ := lru.New[string, struct{}](readOverlaySize)

	byName := lo.SliceToMap(providers, func(p provider.Provider) (string, provider.Provider) {
		return p.Name(), p
	})
	names := lo.Keys(byName)
	slices.Sort(names)

	return &Service{
		providers:  byName,
		names:      names,
		ttl:        ttl,
		fetchLimit: fetchLimit,
		now:        time.Now,
		entries:    make(map[string]entry),
		readIDs:    readIDs,
	}
}

// Providers returns the active provider names, sorted.
func (s *Service) Providers() []string {
	return slices.Clone(s.names)
}

// GetItems serves a page of the feed for one provider or for all of them.
// It never fails: providers that error count as empty, so a scope where
// every provider failed caches an empty list until the TTL runs out. An
// unknown provider yields an empty page.
func (s *Service) GetItems(ctx context.Context, q Query) []feed.Item {
	key := cmp.Or(q.Provider, AllKey)
	if q.Provider != "" {
		if _, ok := s.providers[q.Provider]; !ok {
			slog.Warn("Unknown provider requested", "provider", q.Provider)
			return []feed.Item{}
		}
	}

	if items, ok := s.fresh(key); ok {
		cacheRequests.WithLabelValues("hit").Inc()
		return page(items, q.Limit, q.Offset)
	}

	cacheRequests.WithLabelValues("miss").Inc()
	items, _ := s.load(ctx, key)
	return page(items, q.Limit, q.Offset)
}

// Prefetch loads the scope of name (or every provider when name is empty)
// if its cache entry is missing or stale. It fails only when every provider
// in scope failed.
func (s *Service) Prefetch(ctx context.Context, name string) error {
	key := cmp.Or(name, AllKey)
	if name != "" {
		if _, ok := s.providers[name]; !ok {
			return fmt.Errorf("%w: %s", provider.ErrUnknownProvider, name)
		}
	}

	if _, ok := s.fresh(key); ok {
		return nil
	}

	_, err := s.load(ctx, key)
	return err
}

// GetItem looks an item up in the cache first, then asks the owning
// provider.
func (s *Service) GetItem(ctx context.Context, id string) (*feed.Item, error) {
	if item, ok := s.cached(id); ok {
		return &item, nil
	}

	p, ok := s.providers[feed.ProviderOf(id)]
	if !ok {
		return nil, ErrNotFound
	}

	getter, ok := p.(provider.ItemGetter)
	if !ok {
		return nil, ErrNotFound
	}

	item, err := getter.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	if item == nil {
		return nil, ErrNotFound
	}

	if s.readIDs.Contains(item.ID) {
		item.Read = true
	}
	return item, nil
}

// MarkAsRead records the item as read in every cache entry holding it and
// forwards the change to the owning provider. Provider failures are logged.
func (s *Service) MarkAsRead(ctx context.Context, id string) {
	if p, ok := s.providers[feed.ProviderOf(id)]; ok {
		if marker, ok := p.(provider.ReadMarker); ok {
			if err := marker.MarkAsRead(ctx, id); err != nil {
				slog.Error("Failed to mark item as read", "provider", p.Name(), "id", id, "error", err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.readIDs.Add(id, struct{}{})

	for key, e := range s.entries {
		idx := slices.IndexFunc(e.items, func(item feed.Item) bool { return item.ID == id })
		if idx < 0 || e.items[idx].Read {
			continue
		}

		items := slices.Clone(e.items)
		items[idx].Read = true
		s.entries[key] = entry{items: items, fetchedAt: e.fetchedAt}
	}
}

// Refresh drops every cache entry. Fetches already in flight finish but
// their results are not stored.
func (s *Service) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]entry)
	s.generation++
	cachedItems.Reset()

	slog.Debug("Feed cache invalidated", "generation", s.generation)
}

// TestConnections checks every active provider concurrently.
func (s *Service) TestConnections(ctx context.Context) map[string]bool {
	results := make([]bool, len(s.names))

	var g errgroup.Group
	for i, name := range s.names {
		g.Go(func() error {
			results[i] = s.providers[name].TestConnection(ctx)
			return nil
		})
	}
	g.Wait()

	return lo.SliceToMap(lo.Range(len(s.names)), func(i int) (string, bool) {
		return s.names[i], results[i]
	})
}

func (s *Service) fresh(key string) ([]feed.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || s.now().Sub(e.fetchedAt) >= s.ttl {
		return nil, false
	}
	return e.items, true
}

func (s *Service) cached(id string) (feed.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if idx := slices.IndexFunc(e.items, func(item feed.Item) bool { return item.ID == id }); idx >= 0 {
			return e.items[idx], true
		}
	}
	return feed.Item{}, false
}

// load fetches key once per generation no matter how many callers miss at
// the same time. Fetches run detached from the caller's cancellation.
func (s *Service) load(ctx context.Context, key string) ([]feed.Item, error) {
	s.mu.RLock()
	generation := s.generation
	s.mu.RUnlock()

	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key+"#"+strconv.FormatUint(generation, 10), func() (any, error) {
		return s.fetchAndStore(fetchCtx, key, generation)
	})

	items, _ := v.([]feed.Item)
	return items, err
}

func (s *Service) fetchAndStore(ctx context.Context, key string, generation uint64) ([]feed.Item, error) {
	scope := s.scope(key)
	results := make([][]feed.Item, len(scope))
	failures := make([]error, len(scope))

	var g errgroup.Group
	for i, p := range scope {
		g.Go(func() error {
			start := time.Now()
			items, err := p.FetchItems(ctx, s.fetchLimit)
			providerFetchDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

			if err != nil {
				providerFetches.WithLabelValues(p.Name(), "error").Inc()
				slog.Error("Provider fetch failed", "provider", p.Name(), "error", err)
				failures[i] = err
				return nil
			}

			providerFetches.WithLabelValues(p.Name(), "success").Inc()
			results[i] = items
			return nil
		})
	}
	g.Wait()

	var fetchErr error
	if len(scope) > 0 && lo.EveryBy(failures, func(err error) bool { return err != nil }) {
		fetchErr = fmt.Errorf("all providers failed for %s: %w", key, errors.Join(failures...))
	}

	merged := merge(results)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range merged {
		if s.readIDs.Contains(merged[i].ID) {
			merged[i].Read = true
		}
	}

	if s.generation == generation {
		s.entries[key] = entry{items: merged, fetchedAt: s.now()}
		cachedItems.WithLabelValues(key).Set(float64(len(merged)))
	} else {
		slog.Debug("Cache invalidated during fetch, not storing", "key", key)
	}

	slog.Debug("Feed fetched", "key", key, "providers", len(scope), "items", len(merged))
	return merged, fetchErr
}

func (s *Service) scope(key string) []provider.Provider {
	if key != AllKey {
		return []provider.Provider{s.providers[key]}
	}
	return lo.Map(s.names, func(name string, _ int) provider.Provider {
		return s.providers[name]
	})
}

// merge concatenates provider results, keeps the first occurrence of every
// ID and orders the result newest first. Items with equal dates keep their
// relative order.
func merge(results [][]feed.Item) []feed.Item {
	merged := lo.UniqBy(lo.Flatten(results), func(item feed.Item) string {
		return item.ID
	})

	slices.SortStableFunc(merged, func(a, b feed.Item) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	return merged
}

func page(items []feed.Item, limit, offset int) []feed.Item {
	if limit <= 0 {
		return []feed.Item{}
	}

	offset = min(max(offset, 0), len(items))
	end := min(offset+limit, len(items))

	result := make([]feed.Item, end-offset)
	copy(result, items[offset:end])
	return result
}
