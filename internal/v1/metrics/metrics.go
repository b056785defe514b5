// Package metrics declares the Prometheus series for the djroom engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Naming convention: namespace_subsystem_name
// - namespace: djroom
// - subsystem: room, websocket, event, beacon, persistence, redis, rate_limit, circuit_breaker
var (
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "djroom",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "djroom",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "djroom",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of members in each room",
	}, []string{"room_id"})

	RoomVersion = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "djroom",
		Subsystem: "room",
		Name:      "version",
		Help:      "Current version of each room's state",
	}, []string{"room_id"})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "djroom",
		Subsystem: "event",
		Name:      "events_total",
		Help:      "Total events processed, by type and outcome",
	}, []string{"event_type", "status"})

	EventProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "djroom",
		Subsystem: "event",
		Name:      "processing_seconds",
		Help:      "Time spent processing an inbound event through the pipeline",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
	}, []string{"event_type"})

	IdempotencyDuplicates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "djroom",
		Subsystem: "event",
		Name:      "idempotent_duplicates_total",
		Help:      "Total events rejected or short-circuited as duplicates",
	}, []string{"event_type"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "djroom",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total events rejected for exceeding a rate-limit bucket",
	}, []string{"bucket"})

	BeaconTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "djroom",
		Subsystem: "beacon",
		Name:      "tick_seconds",
		Help:      "Time spent computing and broadcasting one room's beacon tick",
		Buckets:   prometheus.DefBuckets,
	})

	PersistenceSnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "djroom",
		Subsystem: "persistence",
		Name:      "snapshots_total",
		Help:      "Total snapshot attempts, by outcome",
	}, []string{"status"})

	PersistenceSnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "djroom",
		Subsystem: "persistence",
		Name:      "snapshot_seconds",
		Help:      "Duration of snapshot writes to the persistence sink",
		Buckets:   prometheus.DefBuckets,
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "djroom",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "djroom",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "djroom",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total Redis operations, by outcome",
	}, []string{"operation", "status"})

	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "djroom",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
