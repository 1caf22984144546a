package bgrun

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus
// metrics kept in its own registry.
type PrometheusMetricsCollector struct {
	requests        *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	spawned         prometheus.Counter
	spawnFailures   *prometheus.CounterVec
	exits           *prometheus.CounterVec
	runtime         prometheus.Histogram
	peerGone        prometheus.Counter
	runningCommands prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector.
// The namespace defaults to "bgrun".
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "bgrun"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of decoded requests",
		},
		[]string{"type"},
	)

	pmc.rejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Total number of requests closed without a reply",
		},
		[]string{"reason"},
	)

	pmc.spawned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_spawned_total",
			Help:      "Total number of started commands",
		},
	)

	pmc.spawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_spawn_failures_total",
			Help:      "Total number of commands that failed to start",
		},
		[]string{"reason"},
	)

	pmc.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_exits_total",
			Help:      "Total number of command exits by exit code",
		},
		[]string{"exit_code"},
	)

	pmc.runtime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_runtime_seconds",
			Help:      "Time between a command's start and its observed exit",
			Buckets:   []float64{0.1, 1, 10, 60, 300, 1800, 3600, 6 * 3600},
		},
	)

	pmc.peerGone = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_peer_gone_total",
			Help:      "Total number of commands killed because the client left before the reply",
		},
	)

	pmc.runningCommands = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_commands",
			Help:      "Number of commands currently in the registry",
		},
	)

	pmc.registry.MustRegister(
		pmc.requests,
		pmc.rejected,
		pmc.spawned,
		pmc.spawnFailures,
		pmc.exits,
		pmc.runtime,
		pmc.peerGone,
		pmc.runningCommands,
	)

	return pmc
}

func (pmc *PrometheusMetricsCollector) RequestReceived(requestType string) {
	pmc.requests.WithLabelValues(requestType).Inc()
}

func (pmc *PrometheusMetricsCollector) RequestRejected(reason string) {
	pmc.rejected.WithLabelValues(reason).Inc()
}

func (pmc *PrometheusMetricsCollector) CommandSpawned() {
	pmc.spawned.Inc()
}

func (pmc *PrometheusMetricsCollector) CommandSpawnFailed(reason string) {
	pmc.spawnFailures.WithLabelValues(reason).Inc()
}

func (pmc *PrometheusMetricsCollector) CommandExited(exitCode int, runtime time.Duration) {
	pmc.exits.WithLabelValues(strconv.Itoa(exitCode)).Inc()
	pmc.runtime.Observe(runtime.Seconds())
}

func (pmc *PrometheusMetricsCollector) PeerGone() {
	pmc.peerGone.Inc()
}

func (pmc *PrometheusMetricsCollector) RunningCommands(n int) {
	pmc.runningCommands.Set(float64(n))
}

// Registry returns the Prometheus registry for HTTP handler setup.
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// Compile-time interface compliance check
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
