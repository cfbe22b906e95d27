// Package metrics provides Prometheus metrics for the plexmon service.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexmon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plexmon_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Reachability metrics
	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexmon_probes_total",
			Help: "Total reachability probes by outcome",
		},
		[]string{"outcome"},
	)

	probeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plexmon_probe_duration_seconds",
			Help:    "Time to connect (or fail to connect) to the monitored endpoint",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	serverOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plexmon_server_online",
			Help: "1 when the monitored media server is considered online",
		},
	)

	alertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexmon_alerts_sent_total",
			Help: "Alerts delivered to the chat transport",
		},
		[]string{"kind"},
	)

	// Download-queue gateway metrics
	gatewayLoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexmon_gateway_logins_total",
			Help: "Download API authentication attempts",
		},
		[]string{"result"},
	)

	gatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexmon_gateway_calls_total",
			Help: "Download API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	activeDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plexmon_active_downloads",
			Help: "Downloads observed incomplete and not yet reported complete",
		},
	)

	downloadCompletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plexmon_download_completions_total",
			Help: "Completion events emitted by the download reconciler",
		},
	)

	// Chat metrics
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexmon_commands_total",
			Help: "Chat commands handled by name and result",
		},
		[]string{"command", "result"},
	)

	conversationSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plexmon_conversation_sessions",
			Help: "Pending multi-step conversations",
		},
	)

	alertSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plexmon_alert_subscribers",
			Help: "Number of active alert stream subscribers",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProbe records one reachability probe.
func RecordProbe(outcome string, duration time.Duration) {
	probesTotal.WithLabelValues(outcome).Inc()
	probeDuration.Observe(duration.Seconds())
}

// SetServerOnline sets the reachability gauge.
func SetServerOnline(online bool) {
	if online {
		serverOnline.Set(1)
		return
	}
	serverOnline.Set(0)
}

// RecordAlertSent records a delivered alert.
func RecordAlertSent(kind string) {
	alertsSentTotal.WithLabelValues(kind).Inc()
}

// RecordGatewayLogin records an authentication attempt.
func RecordGatewayLogin(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	gatewayLoginsTotal.WithLabelValues(result).Inc()
}

// RecordGatewayCall records a gateway call outcome.
func RecordGatewayCall(endpoint, outcome string) {
	gatewayCallsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// SetActiveDownloads sets the tracked download count.
func SetActiveDownloads(count int) {
	activeDownloads.Set(float64(count))
}

// RecordDownloadCompletion records a completion event.
func RecordDownloadCompletion() {
	downloadCompletionsTotal.Inc()
}

// RecordCommand records a handled chat command.
func RecordCommand(command, result string) {
	commandsTotal.WithLabelValues(command, result).Inc()
}

// SetConversationSessions sets the pending conversation count.
func SetConversationSessions(count int) {
	conversationSessions.Set(float64(count))
}

// SetAlertSubscribers sets the number of alert stream subscribers.
func SetAlertSubscribers(count int) {
	alertSubscribers.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics, labelled
// by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
