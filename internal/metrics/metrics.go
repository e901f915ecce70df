// Package metrics holds the service's Prometheus collectors.
package metrics

import (
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
			Namespace: "microburst",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "microburst",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "microburst",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	coursesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "microburst",
			Subsystem: "courses",
			Name:      "created_total",
			Help:      "Course creation attempts by source type and result.",
		},
		[]string{"type", "result"},
	)

	ingestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "microburst",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Duration of content ingestion calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"type"},
	)

	lessonsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "microburst",
			Subsystem: "delivery",
			Name:      "lessons_total",
			Help:      "Lesson delivery attempts by result.",
		},
		[]string{"result"},
	)

	deliveryRuns = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "microburst",
			Subsystem: "delivery",
			Name:      "run_duration_seconds",
			Help:      "Duration of dispatcher runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	liveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "microburst",
			Subsystem: "session",
			Name:      "clients",
			Help:      "Client sessions held in memory.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		coursesCreated,
		ingestDuration,
		lessonsDelivered,
		deliveryRuns,
		liveClients,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP metrics collection.
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

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordCourseCreated counts a course creation attempt.
func RecordCourseCreated(sourceType string, err error) {
	coursesCreated.WithLabelValues(sourceType, result(err)).Inc()
}

// RecordIngest observes one ingestion call.
func RecordIngest(sourceType string, d time.Duration) {
	ingestDuration.WithLabelValues(sourceType).Observe(d.Seconds())
}

// RecordDelivery counts one lesson delivery attempt.
func RecordDelivery(err error) {
	lessonsDelivered.WithLabelValues(result(err)).Inc()
}

// RecordDeliveryRun observes one dispatcher run.
func RecordDeliveryRun(d time.Duration) {
	deliveryRuns.Observe(d.Seconds())
}

// SetClients reports the number of live client sessions.
func SetClients(n int) {
	liveClients.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath collapses record ids so label cardinality stays bounded:
// /microburst-api/courses/2Nx.../status becomes /microburst-api/courses/:id/status.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	for i := 1; i < len(parts); i++ {
		switch parts[i-1] {
		case "courses", "lessons":
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}
