package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "multiplayergame"

var (
	// HTTPRequestDuration tracks request latency by route, method, and status.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	// RateLimitRejections counts requests rejected by rate limiting.
	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by rate limiting",
		},
		[]string{"route"},
	)

	// ActionsSubmitted counts submitted actions by kind and result.
	ActionsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "actions_total",
			Help:      "Total number of submitted actions by kind and result",
		},
		[]string{"kind", "result"},
	)

	// ActionDuration tracks the end-to-end latency of action submissions.
	ActionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "action_duration_seconds",
			Help:      "Duration of action submissions in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ValidatorInvocations counts sandbox invocations by outcome.
	ValidatorInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "validator_invocations_total",
			Help:      "Total number of validator invocations by outcome",
		},
		[]string{"outcome"},
	)

	// ValidatorDuration tracks validator execution latency.
	ValidatorDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "validator_duration_seconds",
			Help:      "Duration of validator invocations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
	)

	// ActiveRooms tracks rooms currently tracked by the registry.
	ActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "active_rooms",
			Help:      "Number of rooms currently tracked by the registry",
		},
	)

	// Subscribers tracks live broadcast subscribers across all rooms.
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Number of live broadcast subscribers",
		},
	)

	// BroadcastDrops counts frames dropped on slow subscriber channels.
	BroadcastDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "dropped_frames_total",
			Help:      "Total number of broadcast frames dropped on slow subscribers",
		},
	)

	// WSConnections tracks open websocket connections.
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "ws_connections",
			Help:      "Number of open websocket connections",
		},
	)

	// BridgeEvents counts observational bridge events accepted at ingest.
	BridgeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "events_ingested_total",
			Help:      "Total number of bridge events accepted at the ingest endpoint",
		},
		[]string{"kind"},
	)

	// ConversionJobs counts conversion jobs by terminal status.
	ConversionJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "converter",
			Name:      "jobs_total",
			Help:      "Total number of conversion jobs by terminal status",
		},
		[]string{"status"},
	)

	// LLMRequests counts model provider requests by outcome.
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "converter",
			Name:      "llm_requests_total",
			Help:      "Total number of model provider requests by outcome",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

func init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestDuration,
			RateLimitRejections,
			ActionsSubmitted,
			ActionDuration,
			ValidatorInvocations,
			ValidatorDuration,
			ActiveRooms,
			Subscribers,
			BroadcastDrops,
			WSConnections,
			BridgeEvents,
			ConversionJobs,
			LLMRequests,
		)
	})
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
