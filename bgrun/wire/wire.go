// Package wire describes the messages exchanged over the daemon socket. Each
// connection carries exactly one JSON request from the client followed by at
// most one reply from the daemon, after which the daemon closes it.
package wire

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BufferSize bounds the size of a request. Anything past it is truncated and
// will usually fail to decode.
const BufferSize = 1024

const (
	TypeCommand = "command"
	TypeRunning = "running"
)

var (
	// ErrDecode is returned if a request is not a JSON object.
	ErrDecode = errors.New("malformed request")
	// ErrMissingType is returned if a request has no type.
	ErrMissingType = errors.New("request is missing type")
	// ErrUnknownType is returned if a request has an unrecognized type.
	ErrUnknownType = errors.New("unknown request type")
	// ErrMissingCommand is returned if a command request has no command.
	ErrMissingCommand = errors.New("command request is missing command")
)

// Request is either a CommandRequest or a RunningRequest.
type Request interface {
	Type() string
	request()
}

// CommandRequest asks the daemon to start a command.
type CommandRequest struct {
	Command string
	Args    []string
	LogFile string // empty to discard output
}

func (req CommandRequest) Type() string { return TypeCommand }
func (req CommandRequest) request()     {}

// Argv returns the argument vector that the command is started with.
func (req CommandRequest) Argv() []string {
	argv := make([]string, 0, len(req.Args)+1)
	argv = append(argv, req.Command)
	argv = append(argv, req.Args...)
	return argv
}

// RunningRequest asks the daemon for the list of running commands.
type RunningRequest struct{}

func (req RunningRequest) Type() string { return TypeRunning }
func (req RunningRequest) request()     {}

type commandJSON struct {
	Type    string   `json:"type"`
	Command *string  `json:"command"`
	Args    []string `json:"args"`
	LogFile *string  `json:"log_file"`
}

type runningJSON struct {
	Type string `json:"type"`
}

// EncodeRequest encodes the request into its wire form.
func EncodeRequest(req Request) ([]byte, error) {
	var v interface{}

	switch req := req.(type) {
	case CommandRequest:
		args := req.Args
		if args == nil {
			args = []string{}
		}

		v = commandJSON{
			Type:    TypeCommand,
			Command: &req.Command,
			Args:    args,
			LogFile: optional(req.LogFile),
		}
	case RunningRequest:
		v = runningJSON{Type: TypeRunning}
	default:
		return nil, errors.Wrapf(ErrUnknownType, "cannot encode %T", req)
	}

	return json.Marshal(v)
}

// DecodeRequest decodes a request read off a connection. The returned error
// matches one of ErrDecode, ErrMissingType, ErrUnknownType or
// ErrMissingCommand.
func DecodeRequest(b []byte) (Request, error) {
	var raw commandJSON

	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, errors.Wrap(ErrDecode, err.Error())
	}

	switch raw.Type {
	case TypeRunning:
		return RunningRequest{}, nil
	case TypeCommand:
		if raw.Command == nil || *raw.Command == "" {
			return nil, ErrMissingCommand
		}

		req := CommandRequest{
			Command: *raw.Command,
			Args:    raw.Args,
		}
		if raw.LogFile != nil {
			req.LogFile = *raw.LogFile
		}

		return req, nil
	case "":
		return nil, ErrMissingType
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%q", raw.Type)
	}
}

// ReadMessage reads a single message of at most BufferSize bytes from r. It
// stops at EOF, once the buffer is full or as soon as the bytes read so far
// form a complete JSON value, so clients do not have to half-close their end.
func ReadMessage(r io.Reader) ([]byte, error) {
	buf := make([]byte, BufferSize)
	var n int

	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m

		if err != nil {
			if err == io.EOF {
				break
			}
			return buf[:n], errors.Wrap(err, "failed to read message")
		}

		if json.Valid(buf[:n]) {
			break
		}
	}

	return buf[:n], nil
}

// Entry describes one running command in the reply to a RunningRequest.
type Entry struct {
	PID     int     `json:"pid"`
	Command string  `json:"command"`
	LogFile *string `json:"log_file"`
}

// NewEntry creates an Entry. The command is argv joined by spaces.
func NewEntry(pid int, argv []string, logFile string) Entry {
	return Entry{
		PID:     pid,
		Command: strings.Join(argv, " "),
		LogFile: optional(logFile),
	}
}

// EncodeRunning encodes the reply to a RunningRequest. An empty list is
// encoded as [] rather than null.
func EncodeRunning(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}

	return json.Marshal(entries)
}

// DecodeRunning decodes the reply to a RunningRequest.
func DecodeRunning(b []byte) ([]Entry, error) {
	var entries []Entry

	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to decode running list")
	}

	return entries, nil
}

// EncodePID encodes the reply to a CommandRequest.
func EncodePID(pid int) []byte {
	return strconv.AppendInt(nil, int64(pid), 10)
}

// DecodePID decodes the reply to a CommandRequest.
func DecodePID(b []byte) (int, error) {
	pid, err := strconv.Atoi(string(bytes.TrimSpace(b)))
	if err != nil {
		return 0, errors.Wrap(err, "invalid pid reply")
	}

	return pid, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
