// Package metrics exposes Prometheus collectors for the pricing research service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	collectionsTotal           *prometheus.CounterVec
	collectionDurationSeconds  *prometheus.HistogramVec
	sellersCollectedTotal      *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	persistTotal               *prometheus.CounterVec
	backgroundTasksTotal       *prometheus.CounterVec
	backgroundTasksActive      prometheus.Gauge
	crawlDelaySeconds          *prometheus.HistogramVec
	robotsFallbackTotal        prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
			},
			[]string{"method", "route"},
		)

		collectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_collections_total",
				Help: "Total number of collector executions, labeled by marketplace and outcome.",
			},
			[]string{"marketplace", "outcome"},
		)

		collectionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "research_collection_duration_seconds",
				Help:    "Histogram of collector execution time, labeled by marketplace.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"marketplace"},
		)

		sellersCollectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_sellers_collected_total",
				Help: "Total number of seller offers collected, labeled by marketplace.",
			},
			[]string{"marketplace"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_cache_lookups_total",
				Help: "Stored research lookups, labeled by result (hit, stale, miss).",
			},
			[]string{"result"},
		)

		persistTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_persist_total",
				Help: "Snapshot persistence attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		backgroundTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "background_tasks_total",
				Help: "Completed background tasks, labeled by name and outcome.",
			},
			[]string{"task", "outcome"},
		)

		backgroundTasksActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "background_tasks_active",
				Help: "Number of background tasks currently running.",
			},
		)

		crawlDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_crawl_delay_seconds",
				Help:    "Histogram of crawl-delay waits before page fetches.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		robotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "collector_robots_fallback_total",
				Help: "robots.txt probes that fell back to allow-all after transient TLS failures.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCollection records one collector execution.
func ObserveCollection(marketplace, outcome string, sellers int, duration time.Duration) {
	Init()
	collectionsTotal.WithLabelValues(marketplace, outcome).Inc()
	collectionDurationSeconds.WithLabelValues(marketplace).Observe(duration.Seconds())
	if sellers > 0 {
		sellersCollectedTotal.WithLabelValues(marketplace).Add(float64(sellers))
	}
}

// ObserveCacheLookup records the result of a stored research lookup.
func ObserveCacheLookup(result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObservePersist records the outcome of a snapshot save.
func ObservePersist(outcome string) {
	Init()
	persistTotal.WithLabelValues(outcome).Inc()
}

// ObserveBackgroundTask records a finished background task.
func ObserveBackgroundTask(task, outcome string) {
	Init()
	backgroundTasksTotal.WithLabelValues(task, outcome).Inc()
}

// IncActiveTasks increments the active background tasks gauge.
func IncActiveTasks() {
	Init()
	backgroundTasksActive.Inc()
}

// DecActiveTasks decrements the active background tasks gauge.
func DecActiveTasks() {
	Init()
	backgroundTasksActive.Dec()
}

// ObserveCrawlDelay records the duration of a crawl-delay wait.
func ObserveCrawlDelay(domain string, duration time.Duration) {
	Init()
	crawlDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRobotsFallback increments the robots.txt allow-all fallback counter.
func ObserveRobotsFallback() {
	Init()
	robotsFallbackTotal.Inc()
}
