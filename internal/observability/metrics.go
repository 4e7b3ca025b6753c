package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cycleDuration tracks one apply, reconcile and aggregate cycle
	cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_cycle_duration_seconds",
		Help:    "Filter change cycle duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	}, []string{"operation"})

	guardResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_guard_resets_total",
		Help: "Filter dimensions reset to wildcard by the consistency guard",
	}, []string{"dimension"})

	loadedFacts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_loaded_facts",
		Help: "Number of facts in the current store",
	})

	loadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_load_total",
		Help: "Fact store loads by result",
	}, []string{"result"}) // "ok", "cache" or "error"

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_http_requests_total",
		Help: "HTTP requests by route pattern, method and status",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

func ObserveCycle(operation string, d time.Duration) {
	cycleDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func RecordGuardReset(dimension string) {
	guardResets.WithLabelValues(dimension).Inc()
}

func RecordLoad(result string, facts int) {
	loadTotal.WithLabelValues(result).Inc()
	if result != "error" {
		loadedFacts.Set(float64(facts))
	}
}

// ObserveRequest records one served request. route is the matched mux
// pattern, which keeps label cardinality bounded.
func ObserveRequest(route, method string, status int, d time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
