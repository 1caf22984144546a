package bgrun

import (
	"net"
	"time"

	"git.unix.lgbt/diamondburned/bgrun/bgrun/exec"
	"git.unix.lgbt/diamondburned/bgrun/bgrun/wire"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrPeerGone is returned when a reply cannot be written to the client.
var ErrPeerGone = errors.New("peer gone")

// Launcher starts a command with its output going to logFile, or nowhere if
// logFile is empty. exec.Launch is the default Launcher.
type Launcher func(argv []string, logFile string) (exec.Process, error)

// Handler serves connections, one request each. A Handler must not be copied
// after first use.
type Handler struct {
	Registry *Registry
	Journal  Journaler
	Metrics  MetricsCollector
	Launch   Launcher

	// ReadTimeout bounds the time a client has to send its request and to
	// accept the reply. Zero means no timeout.
	ReadTimeout time.Duration
	// IgnoreRunning leaves commands started during shutdown running instead
	// of killing them.
	IgnoreRunning bool
}

// ServeConn reads a single request from conn and serves it. The connection is
// always closed by the time ServeConn returns; for command requests, it is
// closed as soon as the PID is sent, and ServeConn keeps blocking until the
// command exits.
func (h *Handler) ServeConn(conn net.Conn) {
	id := uuid.NewString()
	// Closing twice is harmless; serveCommand closes early.
	defer conn.Close()

	if h.ReadTimeout > 0 {
		conn.SetDeadline(time.Now().Add(h.ReadTimeout))
	}

	b, err := wire.ReadMessage(conn)
	if err != nil {
		h.reject(id, "read", err)
		return
	}

	req, err := wire.DecodeRequest(b)
	if err != nil {
		h.reject(id, rejectReason(err), err)
		return
	}

	h.Metrics.RequestReceived(req.Type())

	switch req := req.(type) {
	case wire.RunningRequest:
		h.serveRunning(conn)
	case wire.CommandRequest:
		h.serveCommand(id, conn, req)
	}
}

func (h *Handler) reject(id, reason string, err error) {
	h.Metrics.RequestRejected(reason)
	h.Journal.Write(&EventRequestRejected{
		Conn:   id,
		Reason: err.Error(),
	})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, wire.ErrMissingType):
		return "missing_type"
	case errors.Is(err, wire.ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, wire.ErrMissingCommand):
		return "missing_command"
	case errors.Is(err, wire.ErrDecode):
		return "decode"
	default:
		return "other"
	}
}

func (h *Handler) serveRunning(conn net.Conn) {
	b, err := wire.EncodeRunning(h.Registry.Entries())
	if err != nil {
		h.Journal.Write(&EventWarning{
			Component: "handler",
			Error:     errors.Wrap(err, "failed to encode running list").Error(),
		})
		return
	}

	if _, err := conn.Write(b); err != nil {
		h.Journal.Write(&EventWarning{
			Component: "handler",
			Error:     errors.Wrap(err, "failed to send running list").Error(),
		})
	}
}

func (h *Handler) serveCommand(id string, conn net.Conn, req wire.CommandRequest) {
	argv := req.Argv()

	proc, err := h.Launch(argv, req.LogFile)
	if err != nil {
		h.Metrics.CommandSpawnFailed(spawnFailReason(err))
		h.Journal.Write(&EventCommandSpawnError{
			Conn:    id,
			Command: argv,
			LogFile: req.LogFile,
			Reason:  err.Error(),
		})
		return
	}

	h.Metrics.CommandSpawned()
	h.Journal.Write(&EventCommandSpawned{
		Conn:    id,
		PID:     proc.PID(),
		Command: argv,
		LogFile: req.LogFile,
	})

	if _, err := conn.Write(wire.EncodePID(proc.PID())); err != nil {
		// Nobody knows about this command, so it may not outlive us.
		proc.Kill()

		h.Metrics.PeerGone()
		h.Journal.Write(&EventPeerGone{
			Conn:  id,
			PID:   proc.PID(),
			Error: errors.Wrap(ErrPeerGone, err.Error()).Error(),
		})

		proc.Wait(nil)
		return
	}

	conn.Close()

	h.run(proc, argv, req.LogFile)
}

func spawnFailReason(err error) string {
	switch {
	case errors.Is(err, exec.ErrLogFile):
		return "log_file"
	case errors.Is(err, exec.ErrSpawn):
		return "spawn"
	default:
		return "other"
	}
}

// run registers the process, waits for it to exit and removes it again.
func (h *Handler) run(proc exec.Process, argv []string, logFile string) {
	pid := proc.PID()

	if err := h.Registry.Insert(proc, argv, logFile); err != nil {
		if !errors.Is(err, ErrRegistryClosed) {
			panic(errors.Wrap(err, "registry invariant violated"))
		}

		// The daemon is shutting down and has already terminated everything
		// it knew about.
		if h.IgnoreRunning {
			return
		}

		proc.Kill()
		h.Journal.Write(&EventCommandKilled{
			PID:     pid,
			Command: argv,
			Signal:  "SIGKILL",
		})
	}

	h.Metrics.RunningCommands(h.Registry.Len())

	startedAt := time.Now()
	status := proc.Wait(func() {
		if cmd, ok := h.Registry.Remove(pid); ok {
			startedAt = cmd.StartedAt
		}
	})

	h.Metrics.RunningCommands(h.Registry.Len())
	h.Metrics.CommandExited(status.Code, time.Since(startedAt))

	ev := &EventCommandExited{
		PID:      pid,
		Command:  argv,
		ExitCode: status.Code,
	}
	if status.Error != nil {
		ev.Error = status.Error.Error()
	}

	h.Journal.Write(ev)
}
