package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Engine metrics
	recordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_records_ingested_total",
			Help: "Total number of health records ingested",
		},
		[]string{"facility_type", "ward"},
	)

	recordsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_records_rejected_total",
			Help: "Total number of inbound payloads rejected at the boundary",
		},
		[]string{"facility_type", "reason"},
	)

	staleRecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_records_dropped_total",
			Help: "Records older than the retained window floor, dropped without state rewind",
		},
	)

	duplicateRecordsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicate_records_suppressed_total",
			Help: "Records suppressed by engine-side deduplication",
		},
	)

	alertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_fired_total",
			Help: "Total number of outbreak and spike alerts fired",
		},
		[]string{"kind", "ward"},
	)

	crisisTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capacity_crisis_transitions_total",
			Help: "Facility crisis_likely flag transitions",
		},
		[]string{"direction"},
	)

	nearestQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ambulance_nearest_query_duration_seconds",
			Help:    "Nearest-ambulance query duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_published_total",
			Help: "Total number of broadcast events published",
		},
		[]string{"type"},
	)

	eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_events_dropped_total",
			Help: "Broadcast events dropped because a subscriber buffer was full",
		},
	)

	trackedWindows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "baseline_windows_tracked",
			Help: "Number of (facility, indicator) rolling windows currently tracked",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Engine metric helpers ---

// RecordIngested records an accepted health record
func RecordIngested(facilityType, ward string) {
	recordsIngested.WithLabelValues(facilityType, ward).Inc()
}

// RecordRejected records a payload rejected at the ingestion boundary
func RecordRejected(facilityType, reason string) {
	recordsRejected.WithLabelValues(facilityType, reason).Inc()
}

// RecordStaleDrop records a stale submission dropped by the baseline store
func RecordStaleDrop() {
	staleRecordsDropped.Inc()
}

// RecordDuplicateSuppressed records an engine-side dedupe hit
func RecordDuplicateSuppressed() {
	duplicateRecordsSuppressed.Inc()
}

// RecordAlert records a fired detector alert ("outbreak" or "spike")
func RecordAlert(kind, ward string) {
	alertsFired.WithLabelValues(kind, ward).Inc()
}

// RecordCrisisTransition records a facility entering or leaving crisis
func RecordCrisisTransition(entering bool) {
	direction := "cleared"
	if entering {
		direction = "entered"
	}
	crisisTransitions.WithLabelValues(direction).Inc()
}

// ObserveNearestQuery records a nearest-ambulance query duration
func ObserveNearestQuery(duration time.Duration) {
	nearestQueryDuration.Observe(duration.Seconds())
}

// RecordEventPublished records a broadcast event publish
func RecordEventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped records a broadcast event dropped on a full subscriber
func RecordEventDropped() {
	eventsDropped.Inc()
}

// SetTrackedWindows records the rolling-window population
func SetTrackedWindows(n int) {
	trackedWindows.Set(float64(n))
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
