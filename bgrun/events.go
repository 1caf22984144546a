package bgrun

// eventType describes an event type.
type eventType = string

const (
	eventWarning           eventType = "warning"
	eventListening         eventType = "listening"
	eventRequestRejected   eventType = "request rejected"
	eventCommandSpawnError eventType = "command spawn error"
	eventCommandSpawned    eventType = "command spawned"
	eventPeerGone          eventType = "peer gone"
	eventCommandExited     eventType = "command exited"
	eventCommandKilled     eventType = "command killed"
	eventShutdown          eventType = "shutdown"
)

// Event is an interface describing known events.
type Event interface {
	Type() string
	event()
}

// NewEvent creates a new event from the given event type. It is used primarily
// for decoding events from its type. Nil is returned if the event type is
// unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventWarning:
		return &EventWarning{}
	case eventListening:
		return &EventListening{}
	case eventRequestRejected:
		return &EventRequestRejected{}
	case eventCommandSpawnError:
		return &EventCommandSpawnError{}
	case eventCommandSpawned:
		return &EventCommandSpawned{}
	case eventPeerGone:
		return &EventPeerGone{}
	case eventCommandExited:
		return &EventCommandExited{}
	case eventCommandKilled:
		return &EventCommandKilled{}
	case eventShutdown:
		return &EventShutdown{}
	default:
		return nil
	}
}

// EventWarning is emitted when a non-fatal error occurs.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (ev *EventWarning) Type() string { return eventWarning }
func (ev *EventWarning) event()       {}

// EventListening is emitted once the daemon is bound to its socket.
type EventListening struct {
	Socket string `json:"socket"`
	// Forced is true if a stale socket file was removed first.
	Forced bool `json:"forced,omitempty"`
}

func (ev *EventListening) Type() string { return eventListening }
func (ev *EventListening) event()       {}

// EventRequestRejected is emitted when a request cannot be decoded. The
// connection is closed without a reply.
type EventRequestRejected struct {
	Conn   string `json:"conn"`
	Reason string `json:"reason"`
}

func (ev *EventRequestRejected) Type() string { return eventRequestRejected }
func (ev *EventRequestRejected) event()       {}

// EventCommandSpawnError is emitted when a command fails to start, either
// because its log file cannot be opened or because it cannot be executed.
type EventCommandSpawnError struct {
	Conn    string   `json:"conn"`
	Command []string `json:"command"`
	LogFile string   `json:"log_file,omitempty"`
	Reason  string   `json:"reason"`
}

func (ev *EventCommandSpawnError) Type() string { return eventCommandSpawnError }
func (ev *EventCommandSpawnError) event()       {}

// EventCommandSpawned is emitted when a command has been started.
type EventCommandSpawned struct {
	Conn    string   `json:"conn"`
	PID     int      `json:"pid"`
	Command []string `json:"command"`
	LogFile string   `json:"log_file,omitempty"`
}

func (ev *EventCommandSpawned) Type() string { return eventCommandSpawned }
func (ev *EventCommandSpawned) event()       {}

// EventPeerGone is emitted when the PID of a started command cannot be sent
// back to the client. The command is killed, since nobody knows about it.
type EventPeerGone struct {
	Conn  string `json:"conn"`
	PID   int    `json:"pid"`
	Error string `json:"error"`
}

func (ev *EventPeerGone) Type() string { return eventPeerGone }
func (ev *EventPeerGone) event()       {}

// EventCommandExited is emitted when a registered command has exited and has
// been removed from the registry.
type EventCommandExited struct {
	PID      int      `json:"pid"`
	Command  []string `json:"command"`
	Error    string   `json:"error,omitempty"`
	ExitCode int      `json:"exit_code"` // -1 if killed by a signal
}

// IsSuccess returns true if the command exited with code 0.
func (ev EventCommandExited) IsSuccess() bool {
	return ev.ExitCode == 0 && ev.Error == ""
}

func (ev *EventCommandExited) Type() string { return eventCommandExited }
func (ev *EventCommandExited) event()       {}

// EventCommandKilled is emitted when the daemon signals a running command
// while shutting down.
type EventCommandKilled struct {
	PID     int      `json:"pid"`
	Command []string `json:"command"`
	Signal  string   `json:"signal"`
}

func (ev *EventCommandKilled) Type() string { return eventCommandKilled }
func (ev *EventCommandKilled) event()       {}

// EventShutdown is emitted when the daemon starts shutting down.
type EventShutdown struct {
	Reason  string `json:"reason"`
	Running int    `json:"running"`
	// Orphaned is true if running commands are left alive.
	Orphaned bool `json:"orphaned,omitempty"`
}

func (ev *EventShutdown) Type() string { return eventShutdown }
func (ev *EventShutdown) event()       {}
