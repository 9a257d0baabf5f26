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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentbridge_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "talentbridge_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	notificationsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentbridge_notifications_stored_total",
			Help: "Notifications persisted, by role and type",
		},
		[]string{"role", "type"},
	)

	notificationsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentbridge_notifications_deduplicated_total",
			Help: "Pushes suppressed by the unread-duplicate check, by type",
		},
		[]string{"type"},
	)

	realtimeEmits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentbridge_realtime_emits_total",
			Help: "Real-time emissions, by role and addressing mode",
		},
		[]string{"role", "mode"},
	)

	realtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "talentbridge_realtime_subscribers",
			Help: "Currently connected real-time subscribers",
		},
	)

	realtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talentbridge_realtime_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
	)

	dbConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentbridge_db_connect_attempts_total",
			Help: "Startup connection probe attempts, by outcome",
		},
		[]string{"outcome"},
	)

	migrationAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talentbridge_migration_attempts_total",
			Help: "Schema migration sequence attempts",
		},
	)

	eventGuardRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talentbridge_event_guard_rejections_total",
			Help: "Domain actions rejected as duplicates before dispatch",
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talentbridge_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNotificationStored records one persisted notification
func RecordNotificationStored(role, typ string) {
	notificationsStored.WithLabelValues(role, typ).Inc()
}

// RecordNotificationDeduplicated records a push suppressed as a duplicate
func RecordNotificationDeduplicated(typ string) {
	notificationsDeduplicated.WithLabelValues(typ).Inc()
}

// RecordRealtimeEmit records one real-time emission
func RecordRealtimeEmit(role string, broadcast bool) {
	mode := "targeted"
	if broadcast {
		mode = "broadcast"
	}
	realtimeEmits.WithLabelValues(role, mode).Inc()
}

// SetRealtimeSubscribers sets the connected subscriber count
func SetRealtimeSubscribers(count int) {
	realtimeSubscribers.Set(float64(count))
}

// RecordRealtimeDropped records an event dropped on a full subscriber buffer
func RecordRealtimeDropped() {
	realtimeDropped.Inc()
}

// RecordConnectAttempt records one startup probe attempt
func RecordConnectAttempt(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	dbConnectAttempts.WithLabelValues(outcome).Inc()
}

// RecordMigrationAttempt records one run of the migration sequence
func RecordMigrationAttempt() {
	migrationAttempts.Inc()
}

// RecordEventGuardRejection records a duplicate domain action rejection
func RecordEventGuardRejection() {
	eventGuardRejections.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
