package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Lifecycle commands by entity, command and outcome.",
		},
		[]string{"entity", "command", "outcome"},
	)
	lockConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_lock_conflicts_total",
			Help: "Entity writer lock conflicts.",
		},
		[]string{"entity"},
	)
	notificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_create_failures_total",
			Help: "Notification records that could not be created.",
		},
		[]string{"type"},
	)
	notifyClientResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_client_requests_total",
			Help: "Notification service calls by result.",
		},
		[]string{"result"},
	)
	notifyClientLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_client_latency_seconds",
			Help:    "Notification service latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	complianceSnapshotLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compliance_snapshot_latency_seconds",
			Help:    "Compliance snapshot computation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	complianceRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "training_completion_rate_percent",
			Help: "Training completion rate of the last snapshot.",
		},
	)
	outboxDead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_dead_letters_total",
			Help: "Outbox events moved to dead-letter.",
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests, httpLatency,
		lifecycleTransitions, lockConflicts, notificationFailures,
		notifyClientResults, notifyClientLatency,
		kafkaConsumerLag, influxWriteFailures,
		complianceSnapshotLatency, complianceRate,
		outboxDead, asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

// ObserveTransition counts one lifecycle command; outcome is "ok" or an error kind.
func ObserveTransition(entity string, command string, outcome string) {
	lifecycleTransitions.WithLabelValues(entity, command, outcome).Inc()
}

func IncLockConflict(entity string) {
	lockConflicts.WithLabelValues(entity).Inc()
}

func IncNotificationFailure(notificationType string) {
	notificationFailures.WithLabelValues(notificationType).Inc()
}

func ObserveNotifyClient(result string, d time.Duration) {
	notifyClientResults.WithLabelValues(result).Inc()
	notifyClientLatency.Observe(d.Seconds())
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func ObserveComplianceSnapshot(d time.Duration, completionRate int) {
	complianceSnapshotLatency.Observe(d.Seconds())
	complianceRate.Set(float64(completionRate))
}

func IncOutboxDead() {
	outboxDead.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
