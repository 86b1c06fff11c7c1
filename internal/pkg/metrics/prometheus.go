package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentinela",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// Controller metrics
	controllerMonitorsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "controller",
			Name:      "monitors_processed_total",
			Help:      "Count of monitors processed by the controller",
		},
	)

	controllerQueueErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "controller",
			Name:      "task_queue_errors_total",
			Help:      "Count of times the controller failed to queue a task",
		},
	)

	controllerProcedureRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "controller",
			Name:      "procedure_runs_total",
			Help:      "Count of janitorial procedure executions",
		},
		[]string{"procedure", "status"},
	)

	// Executor metrics
	executorMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "executor",
			Name:      "messages_total",
			Help:      "Count of messages consumed by the executors",
		},
		[]string{"kind"},
	)

	executorMessageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "executor",
			Name:      "message_errors_total",
			Help:      "Count of errors when processing messages",
		},
		[]string{"kind"},
	)

	executorMessagesProcessing = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sentinela",
			Subsystem: "executor",
			Name:      "messages_processing",
			Help:      "Count of messages being processed by the executors",
		},
		[]string{"kind"},
	)

	executorHandlerTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "executor",
			Name:      "handler_timeouts_total",
			Help:      "Count of handlers that exceeded their execution bound",
		},
		[]string{"kind"},
	)

	// Monitor execution metrics
	monitorExecutionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "monitor",
			Name:      "execution_errors_total",
			Help:      "Error count for monitor executions",
		},
		[]string{"monitor_name"},
	)

	monitorExecutionTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "monitor",
			Name:      "execution_timeouts_total",
			Help:      "Timeout count for monitor executions",
		},
		[]string{"monitor_name"},
	)

	monitorRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sentinela",
			Subsystem: "monitor",
			Name:      "running",
			Help:      "Flag indicating if the monitor is running",
		},
		[]string{"monitor_name"},
	)

	monitorExecutionDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: "sentinela",
			Subsystem: "monitor",
			Name:      "execution_seconds",
			Help:      "Time to run the monitor routines",
		},
		[]string{"monitor_name", "routine"},
	)

	monitorSearchIssuesLimit = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "monitor",
			Name:      "search_issues_limit_reached_total",
			Help:      "Count of times the search routine reached the issues creation limit",
		},
		[]string{"monitor_name"},
	)

	monitorNotRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "monitor",
			Name:      "not_registered_total",
			Help:      "Count of times a monitor was not registered after a load attempt",
		},
	)

	// Reaction metrics
	reactionExecutionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "reaction",
			Name:      "execution_errors_total",
			Help:      "Error count for reaction callbacks",
		},
		[]string{"event_name"},
	)

	// Registry metrics
	registryReadyTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "registry",
			Name:      "ready_timeouts_total",
			Help:      "Count of times the application timed out waiting for monitors to be ready",
		},
	)

	// Event metrics
	eventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinela",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Count of lifecycle events emitted",
		},
		[]string{"event_name"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentinela",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "table"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(duration)
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordMonitorProcessed increments the controller processed counter
func RecordMonitorProcessed() {
	controllerMonitorsProcessed.Inc()
}

// RecordQueueError counts a failed task enqueue
func RecordQueueError() {
	controllerQueueErrors.Inc()
}

// RecordProcedureRun counts a janitorial procedure execution
func RecordProcedureRun(procedure, status string) {
	controllerProcedureRuns.WithLabelValues(procedure, status).Inc()
}

// RecordMessage counts a consumed queue message
func RecordMessage(kind string) {
	executorMessages.WithLabelValues(kind).Inc()
}

// RecordMessageError counts a failed message handling
func RecordMessageError(kind string) {
	executorMessageErrors.WithLabelValues(kind).Inc()
}

// RecordHandlerTimeout counts a handler deadline expiry
func RecordHandlerTimeout(kind string) {
	executorHandlerTimeouts.WithLabelValues(kind).Inc()
}

// MessageProcessing tracks the in-flight message gauge
func MessageProcessing(kind string, delta float64) {
	executorMessagesProcessing.WithLabelValues(kind).Add(delta)
}

// RecordMonitorError counts a monitor execution error
func RecordMonitorError(monitorName string) {
	monitorExecutionErrors.WithLabelValues(monitorName).Inc()
}

// RecordMonitorTimeout counts a monitor execution timeout
func RecordMonitorTimeout(monitorName string) {
	monitorExecutionTimeouts.WithLabelValues(monitorName).Inc()
}

// MonitorRunning tracks the running gauge for a monitor
func MonitorRunning(monitorName string, delta float64) {
	monitorRunning.WithLabelValues(monitorName).Add(delta)
}

// ObserveMonitorRoutine records the duration of a monitor routine
func ObserveMonitorRoutine(monitorName, routine string, duration time.Duration) {
	monitorExecutionDuration.WithLabelValues(monitorName, routine).Observe(duration.Seconds())
}

// RecordSearchIssuesLimitReached counts a truncated search result
func RecordSearchIssuesLimitReached(monitorName string) {
	monitorSearchIssuesLimit.WithLabelValues(monitorName).Inc()
}

// RecordMonitorNotRegistered counts a message for an unknown monitor
func RecordMonitorNotRegistered() {
	monitorNotRegistered.Inc()
}

// RecordReactionError counts a failed reaction callback
func RecordReactionError(eventName string) {
	reactionExecutionErrors.WithLabelValues(eventName).Inc()
}

// RecordRegistryReadyTimeout counts a timed out wait for monitors
func RecordRegistryReadyTimeout() {
	registryReadyTimeouts.Inc()
}

// RecordEventEmitted counts an emitted lifecycle event
func RecordEventEmitted(eventName string) {
	eventsEmitted.WithLabelValues(eventName).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation, table string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
