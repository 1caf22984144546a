package bgrun

import "time"

// MetricsCollector collects daemon metrics.
type MetricsCollector interface {
	// RequestReceived records a decoded request of the given type.
	RequestReceived(requestType string)

	// RequestRejected records a request that could not be decoded.
	RequestRejected(reason string)

	// CommandSpawned records a started command.
	CommandSpawned()

	// CommandSpawnFailed records a command that could not be started.
	CommandSpawnFailed(reason string)

	// CommandExited records the exit of a registered command.
	CommandExited(exitCode int, runtime time.Duration)

	// PeerGone records a command killed because its PID could not be sent.
	PeerGone()

	// RunningCommands records the current size of the registry.
	RunningCommands(n int)
}

type noopMetricsCollector struct{}

func (noopMetricsCollector) RequestReceived(string)           {}
func (noopMetricsCollector) RequestRejected(string)           {}
func (noopMetricsCollector) CommandSpawned()                  {}
func (noopMetricsCollector) CommandSpawnFailed(string)        {}
func (noopMetricsCollector) CommandExited(int, time.Duration) {}
func (noopMetricsCollector) PeerGone()                        {}
func (noopMetricsCollector) RunningCommands(int)              {}

// NewNoopMetricsCollector creates a metrics collector that does nothing.
func NewNoopMetricsCollector() MetricsCollector {
	return noopMetricsCollector{}
}
