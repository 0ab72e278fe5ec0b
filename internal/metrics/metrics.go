// Package metrics defines the process-wide Prometheus collectors
// referenced throughout internal/rpcserver and internal/pipeline,
// grounded on original_source/src/metrics.rs's static counter set
// (API_REQUESTS_FETCH, CACHE_HITS/CACHE_MISS, MODERATION_REQUESTS,
// DOCUMENTS_BLOCKED/DOCUMENTS_FORCED, TRAFFIC).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// APIRequests counts RPC dispatches, one series per method name.
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgproxy_api_requests_total",
		Help: "Total RPC requests received, labeled by method.",
	}, []string{"method"})

	// APIRequestsByKey counts authenticated requests per matched apikey
	// name, per spec.md §4.8's "matched name is recorded in a labeled
	// request counter".
	APIRequestsByKey = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgproxy_api_requests_by_key_total",
		Help: "Total authenticated RPC requests, labeled by matched apikey name.",
	}, []string{"key_name"})

	// CacheResults counts verdict-store lookups in img_proxy_fetch,
	// labeled "hit" or "miss".
	CacheResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgproxy_verdict_lookup_total",
		Help: "Verdict-store lookups in img_proxy_fetch, labeled hit or miss.",
	}, []string{"result"})

	// ModerationRequests counts calls into the moderation provider.
	ModerationRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imgproxy_moderation_requests_total",
		Help: "Total calls made to the moderation provider.",
	})

	// DocumentsBlocked counts fetch results whose verdict was blocked.
	DocumentsBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imgproxy_documents_blocked_total",
		Help: "Total documents moderated as blocked.",
	})

	// DocumentsForced counts force=true fetches, which bypass moderation.
	DocumentsForced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imgproxy_documents_forced_total",
		Help: "Total fetches served with force=true, bypassing the verdict check.",
	})

	// Traffic counts served bytes, labeled by disposition ("served").
	Traffic = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgproxy_traffic_bytes_total",
		Help: "Bytes returned to clients, labeled by disposition.",
	}, []string{"disposition"})

	// CacheBytes and CacheEvictions mirror lrucache.Stats() so an
	// operator can graph cache pressure without scraping logs.
	CacheBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "imgproxy_cache_bytes",
		Help: "Current LRU cache occupancy, labeled cur or max.",
	}, []string{"bound"})

	CacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imgproxy_cache_evictions_total",
		Help: "Total entries evicted from the LRU cache.",
	})
)

// Registry is the collector registry exposed at GET /metrics. A
// dedicated registry (rather than prometheus.DefaultRegisterer) keeps
// this package's series independent of anything imported transitively
// registering into the default one.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		APIRequests,
		APIRequestsByKey,
		CacheResults,
		ModerationRequests,
		DocumentsBlocked,
		DocumentsForced,
		Traffic,
		CacheBytes,
		CacheEvictions,
	)
}
