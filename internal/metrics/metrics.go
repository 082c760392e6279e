// Package metrics provides Prometheus metrics for PokeCapture.
// Scrape these at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokecapture_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pokecapture_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Card provider metrics
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokecapture_provider_requests_total",
			Help: "Card provider searches by outcome",
		},
		[]string{"provider", "result"}, // result: "success", "empty", "error"
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pokecapture_provider_latency_seconds",
			Help:    "Card provider search latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
		},
		[]string{"provider"},
	)

	ProviderQuotaRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pokecapture_provider_quota_remaining",
			Help: "Remaining upstream requests for today",
		},
		[]string{"provider"},
	)

	// Lookup session metrics
	LookupSessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokecapture_lookup_sessions_total",
			Help: "Card lookup sessions opened",
		},
	)

	LookupRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pokecapture_lookup_retries_total",
			Help: "Automatic first-page retries",
		},
	)

	LookupFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokecapture_lookup_failures_total",
			Help: "Failed lookup page fetches by error kind",
		},
		[]string{"kind", "page"}, // page: "first" or "more"
	)

	LookupCardsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pokecapture_lookup_cards_returned",
			Help:    "Cards appended per fetched page",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// Collection metrics
	CollectionCaptured = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pokecapture_collection_captured",
			Help: "Number of captured catalog entries",
		},
	)

	CollectionSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokecapture_collection_saves_total",
			Help: "Collection saves by store and result",
		},
		[]string{"store", "result"},
	)

	// Catalog metrics
	CatalogEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pokecapture_catalog_entries",
			Help: "Entries in the loaded catalog, alternate forms included",
		},
	)

	CatalogRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pokecapture_catalog_refresh_duration_seconds",
			Help:    "Time taken to crawl the catalog",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	CatalogCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokecapture_catalog_cache_lookups_total",
			Help: "Catalog detail cache lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// Proxy metrics
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokecapture_proxy_requests_total",
			Help: "Reverse proxy requests by upstream and status",
		},
		[]string{"upstream", "status"},
	)
)

// GinMiddleware records request counts and latency keyed by route template
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
