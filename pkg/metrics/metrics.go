// Package metrics exposes the Prometheus collectors shared across the
// ingestion pipeline, the job queue workers and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the application-specific Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tenantsync",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantsync",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tenantsync",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	jobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantsync",
		Subsystem: "queue",
		Name:      "jobs_total",
		Help:      "Total queue jobs processed, grouped by queue name and outcome.",
	}, []string{"queue", "outcome"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tenantsync",
		Subsystem: "queue",
		Name:      "job_duration_seconds",
		Help:      "Duration of job handler execution.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"queue"})

	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tenantsync",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Observed ready-list depth per queue at the last poll.",
	}, []string{"queue"})

	ingestionRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantsync",
		Subsystem: "ingestion",
		Name:      "runs_total",
		Help:      "Completed ingestion runs grouped by source name and status.",
	}, []string{"source", "status"})

	ingestionRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantsync",
		Subsystem: "ingestion",
		Name:      "records_total",
		Help:      "Records seen during ingestion, grouped by source and disposition.",
	}, []string{"source", "disposition"})

	feedPostsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantsync",
		Subsystem: "feed",
		Name:      "posts_total",
		Help:      "Feed posts emitted, grouped by type.",
	}, []string{"type"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		jobsProcessed,
		jobDuration,
		queueDepth,
		ingestionRuns,
		ingestionRecords,
		feedPostsEmitted,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
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

// RecordJob records the outcome and duration of one queue job execution.
func RecordJob(queue, outcome string, duration time.Duration) {
	if queue == "" {
		queue = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	jobsProcessed.WithLabelValues(queue, outcome).Inc()
	jobDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

// RecordQueueDepth publishes the last-observed ready-list depth for a queue.
func RecordQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordIngestionRun records one completed IngestionRun.
func RecordIngestionRun(source, status string) {
	ingestionRuns.WithLabelValues(source, status).Inc()
}

// RecordIngestionRecords tallies processed/skipped/error record counts for a source.
func RecordIngestionRecords(source, disposition string, n int) {
	if n <= 0 {
		return
	}
	ingestionRecords.WithLabelValues(source, disposition).Add(float64(n))
}

// RecordFeedPost tallies one emitted feed post by its type.
func RecordFeedPost(feedType string) {
	feedPostsEmitted.WithLabelValues(feedType).Inc()
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

// canonicalPath collapses path parameters so the requests_total cardinality
// stays bounded (e.g. /legislators/abc123 -> /legislators/:id).
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		if i == 0 {
			continue
		}
		if looksLikeID(p) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func looksLikeID(segment string) bool {
	if segment == "" {
		return false
	}
	hasDigit := false
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			hasDigit = true
		}
	}
	return hasDigit || strings.Count(segment, "-") >= 4
}
