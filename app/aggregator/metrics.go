package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claude_rss_cache_requests_total",
		Help: "Feed cache lookups by result (hit or miss)",
	}, []string{"result"})

	providerFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claude_rss_provider_fetches_total",
		Help: "Provider fetches by provider and status",
	}, []string{"provider", "status"})

	providerFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claude_rss_provider_fetch_duration_seconds",
		Help:    "Duration of provider fetches",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"provider"})

	cachedItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "claude_rss_cached_items",
		Help: "Number of items held per cache key",
	}, []string{"key"})
)
