package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "developer_api",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "developer_api",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "developer_api",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "developer_api",
			Subsystem: "platforms",
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream platform API calls.",
		},
		[]string{"platform", "outcome"},
	)

	tradeExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "developer_api",
			Subsystem: "trades",
			Name:      "executions_total",
			Help:      "Total number of trade operations by platform and status.",
		},
		[]string{"platform", "mode", "status"},
	)

	tradeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "developer_api",
			Subsystem: "trades",
			Name:      "execution_duration_seconds",
			Help:      "Duration of trade operations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"platform", "mode"},
	)

	feedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "developer_api",
			Subsystem: "feed",
			Name:      "connected_clients",
			Help:      "Current number of connected feed websocket clients.",
		},
	)

	feedBroadcasts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "developer_api",
			Subsystem: "feed",
			Name:      "broadcasts_total",
			Help:      "Total number of feed snapshot broadcasts.",
		},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "developer_api",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter.",
		},
		[]string{"tier"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		upstreamRequests,
		tradeExecutions,
		tradeDuration,
		feedClients,
		feedBroadcasts,
		rateLimited,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordUpstreamRequest records one platform API call.
func RecordUpstreamRequest(platform string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamRequests.WithLabelValues(platform, outcome).Inc()
}

// RecordTrade records metrics for a quote, prepare, or execute operation.
func RecordTrade(platform, mode, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	tradeExecutions.WithLabelValues(platform, mode, status).Inc()
	tradeDuration.WithLabelValues(platform, mode).Observe(duration.Seconds())
}

// RecordRateLimited counts a 429 rejection for the given tier.
func RecordRateLimited(tier string) {
	if tier == "" {
		tier = "unknown"
	}
	rateLimited.WithLabelValues(tier).Inc()
}

// FeedClientConnected adjusts the connected websocket client gauge.
func FeedClientConnected(delta int) {
	feedClients.Add(float64(delta))
}

// RecordFeedBroadcast counts one snapshot broadcast.
func RecordFeedBroadcast() {
	feedBroadcasts.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack delegates to the underlying writer so instrumented handlers can
// still upgrade connections, as the feed websocket does.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// canonicalPath collapses IDs so the path label stays low-cardinality.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "v1" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/v1"
	}
	// /v1/<resource>[/<id>...] -> /v1/<resource> except nested fixed routes.
	path := "/v1/" + parts[1]
	if len(parts) > 2 {
		switch parts[1] {
		case "trading", "auth", "feed":
			path += "/" + parts[2]
		case "markets":
			if parts[len(parts)-1] == "orderbook" {
				path += "/:id/orderbook"
			} else {
				path += "/:id"
			}
		default:
			path += "/:id"
		}
	}
	return path
}
