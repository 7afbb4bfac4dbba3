package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitywatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facilitywatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facilitywatch_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "route"},
	)

	// Simulation metrics
	DriftTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitywatch_drift_ticks_total",
			Help: "Total number of drift ticks",
		},
		[]string{"outcome"}, // outcome: mutated, skipped, failed
	)

	AlertTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitywatch_alert_ticks_total",
			Help: "Total number of alert ticks",
		},
		[]string{"outcome"}, // outcome: raised, quiet, failed
	)

	TickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facilitywatch_tick_duration_seconds",
			Help:    "Time taken by a single simulation tick",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
		[]string{"tick"},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitywatch_status_transitions_total",
			Help: "Total number of derived equipment status transitions",
		},
		[]string{"from", "to"},
	)

	EquipmentByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "facilitywatch_equipment_status",
			Help: "Number of equipment records per status",
		},
		[]string{"status"},
	)

	ThresholdIssuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitywatch_threshold_issues_total",
			Help: "Total number of malformed sensor thresholds found at load time",
		},
		[]string{"equipment_id"},
	)

	// Alert metrics
	AlertsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitywatch_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"source", "severity"}, // source: status, history, random
	)

	AlertsUnread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "facilitywatch_alerts_unread",
			Help: "Current number of unread alerts",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitywatch_notifications_total",
			Help: "Total number of notifications raised",
		},
		[]string{"class"},
	)

	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "facilitywatch_subscribers",
			Help: "Current number of update subscribers",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "facilitywatch_websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	WebsocketDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitywatch_websocket_dropped_total",
			Help: "Total number of websocket messages dropped",
		},
		[]string{"reason"}, // reason: hub_busy, slow_client, stale
	)

	SnapshotLoadFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitywatch_snapshot_load_failures_total",
			Help: "Total number of unreadable snapshots skipped at startup",
		},
	)

	// Worker metrics
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "facilitywatch_worker_queue_size",
			Help: "Current size of the alert publish queue",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "facilitywatch_worker_queue_capacity",
			Help: "Capacity of the alert publish queue",
		},
	)

	WorkerDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitywatch_worker_dropped_total",
			Help: "Total number of alerts dropped because the publish queue was full",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitywatch_worker_processed_total",
			Help: "Total number of alerts published by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitywatch_worker_failed_total",
			Help: "Total number of alerts workers failed to publish",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "facilitywatch_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitywatch_kafka_publish_total",
			Help: "Total number of alerts published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "facilitywatch_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitywatch_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitywatch_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitywatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
