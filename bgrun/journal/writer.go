package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"git.unix.lgbt/diamondburned/bgrun/bgrun"
	"github.com/pkg/errors"
)

// Event describes the JSON structure of an event to be written.
type Event struct {
	Time time.Time   `json:"time"`
	Type string      `json:"type"`
	Data bgrun.Event `json:"data"`
}

// Writer is a simple journaler that writes line-delimited JSON events into the
// writer.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ bgrun.Journaler = (*Writer)(nil)

// NewWriter creates a new journal writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes the given event into the writer. Writes are concurrently safe
// and are atomic.
func (l *Writer) Write(ev bgrun.Event) error {
	evJSON := Event{
		Time: time.Now(),
		Type: ev.Type(),
		Data: ev,
	}

	buf := bytes.Buffer{}
	buf.Grow(512)

	// Encode appends the new line.
	if err := json.NewEncoder(&buf).Encode(evJSON); err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write event")
	}

	return nil
}

// HumanWriter is a journaler that writes one readable line per event, meant
// for a terminal.
type HumanWriter struct {
	l *log.Logger
}

var _ bgrun.Journaler = (*HumanWriter)(nil)

// NewHumanWriter creates a new HumanWriter with the standard log prefix.
func NewHumanWriter(w io.Writer) *HumanWriter {
	return &HumanWriter{log.New(w, "", log.LstdFlags)}
}

// Write writes the event as a single line.
func (h *HumanWriter) Write(ev bgrun.Event) error {
	return h.l.Output(2, FormatEvent(ev))
}

// FormatEvent formats the event as a single human-readable line.
func FormatEvent(ev bgrun.Event) string {
	switch ev := ev.(type) {
	case *bgrun.EventWarning:
		return fmt.Sprintf("warning: %s: %s", ev.Component, ev.Error)

	case *bgrun.EventListening:
		if ev.Forced {
			return fmt.Sprintf("daemon listening on %s (removed stale socket)", ev.Socket)
		}
		return fmt.Sprintf("daemon listening on %s", ev.Socket)

	case *bgrun.EventRequestRejected:
		return fmt.Sprintf("conn %s: rejected request: %s", ev.Conn, ev.Reason)

	case *bgrun.EventCommandSpawnError:
		return fmt.Sprintf("conn %s: failed to start %q: %s", ev.Conn, join(ev.Command), ev.Reason)

	case *bgrun.EventCommandSpawned:
		output := "discarded"
		if ev.LogFile != "" {
			output = ev.LogFile
		}
		return fmt.Sprintf("conn %s: started %q pid %d, output %s", ev.Conn, join(ev.Command), ev.PID, output)

	case *bgrun.EventPeerGone:
		return fmt.Sprintf("conn %s: killed pid %d: %s", ev.Conn, ev.PID, ev.Error)

	case *bgrun.EventCommandExited:
		if ev.IsSuccess() {
			return fmt.Sprintf("done with %q pid %d", join(ev.Command), ev.PID)
		}
		if ev.Error != "" {
			return fmt.Sprintf("command %q pid %d exits with error: %s", join(ev.Command), ev.PID, ev.Error)
		}
		return fmt.Sprintf("command %q pid %d exits with error code %d", join(ev.Command), ev.PID, ev.ExitCode)

	case *bgrun.EventCommandKilled:
		return fmt.Sprintf("sent %s to %q pid %d", ev.Signal, join(ev.Command), ev.PID)

	case *bgrun.EventShutdown:
		action := "terminating"
		if ev.Orphaned {
			action = "leaving"
		}
		return fmt.Sprintf("shutting down (%s), %s %d running command(s)", ev.Reason, action, ev.Running)

	default:
		return fmt.Sprintf("%s: %+v", ev.Type(), ev)
	}
}

func join(argv []string) string {
	return strings.Join(argv, " ")
}
