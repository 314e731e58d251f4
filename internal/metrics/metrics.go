package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection Metrics
var (
	// ConnectionsActive tracks currently open websocket connections on this node
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardsync_connections_active",
			Help: "Number of open websocket connections",
		},
	)

	// ConnectionsRejected tracks upgrades refused by reason (capacity, auth, upgrade)
	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardsync_connections_rejected_total",
			Help: "Websocket connections rejected by reason",
		},
		[]string{"reason"},
	)
)

// Room Metrics
var (
	// RoomsActive tracks number of boards with at least one local member
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardsync_rooms_active",
			Help: "Number of board rooms with at least one member",
		},
	)

	// RoomJoins tracks join/leave operations by result
	RoomJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardsync_room_membership_changes_total",
			Help: "Room membership changes by operation (join, leave, rejected)",
		},
		[]string{"operation"},
	)
)

// Event Metrics
var (
	// EventsReceived tracks inbound frames by wire event name
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardsync_events_received_total",
			Help: "Inbound websocket events by name",
		},
		[]string{"event"},
	)

	// EventsPublished tracks mutation events fanned out by entity kind and operation
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardsync_events_published_total",
			Help: "Mutation events published by kind and operation",
		},
		[]string{"kind", "operation"},
	)

	// EventsRateLimited tracks inbound events dropped by the per-connection limiter
	EventsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardsync_events_rate_limited_total",
			Help: "Inbound events dropped by rate limiting",
		},
	)

	// Deliveries tracks per-member delivery attempts (delivered, dropped)
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardsync_deliveries_total",
			Help: "Per-member event deliveries by result",
		},
		[]string{"result"},
	)

	// FanoutSize tracks how many members a single publish reached
	FanoutSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "boardsync_fanout_members",
			Help:    "Members targeted per publish",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

// Relay and storage Metrics
var (
	// RelayMessages tracks cross-node relay traffic by direction (out, in, skipped, error)
	RelayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardsync_relay_messages_total",
			Help: "Redis relay messages by direction",
		},
		[]string{"direction"},
	)

	// ActivityWrites tracks activity log inserts by status
	ActivityWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardsync_activity_writes_total",
			Help: "Activity log writes by status",
		},
		[]string{"status"},
	)

	// PresenceErrors tracks failed presence updates by operation
	PresenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardsync_presence_errors_total",
			Help: "Failed presence operations",
		},
		[]string{"operation"},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks Postgres query latency by statement verb
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boardsync_db_query_duration_seconds",
			Help:    "Postgres query duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"query"},
	)

	// DBErrorsTotal tracks failed Postgres queries by statement verb
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardsync_db_errors_total",
			Help: "Failed Postgres queries",
		},
		[]string{"query"},
	)
)
