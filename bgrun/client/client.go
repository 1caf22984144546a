// Package client implements the bgrun client: each call connects to the
// daemon, sends one request and reads the one reply.
package client

import (
	"context"
	"io"
	"net"

	"git.unix.lgbt/diamondburned/bgrun/bgrun/wire"
	"github.com/pkg/errors"
)

// ErrNoReply is returned if the daemon closes the connection without a reply,
// which is how it rejects a request or reports a command that failed to start.
var ErrNoReply = errors.New("daemon closed the connection without replying")

// Client talks to the daemon listening on SocketPath.
type Client struct {
	SocketPath string
}

// New creates a new client.
func New(socketPath string) *Client {
	return &Client{SocketPath: socketPath}
}

// Run asks the daemon to start the command and returns its PID.
func (c *Client) Run(ctx context.Context, command string, args []string, logFile string) (int, error) {
	b, err := c.Do(ctx, wire.CommandRequest{
		Command: command,
		Args:    args,
		LogFile: logFile,
	})
	if err != nil {
		return 0, err
	}

	return wire.DecodePID(b)
}

// Running returns the commands the daemon is currently running.
func (c *Client) Running(ctx context.Context) ([]wire.Entry, error) {
	b, err := c.Do(ctx, wire.RunningRequest{})
	if err != nil {
		return nil, err
	}

	return wire.DecodeRunning(b)
}

// Do sends the request and returns the raw reply.
func (c *Client) Do(ctx context.Context, req wire.Request) ([]byte, error) {
	msg, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to daemon")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(msg); err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	// Let the daemon see the end of the request.
	if uc, ok := conn.(*net.UnixConn); ok {
		uc.CloseWrite()
	}

	b, err := io.ReadAll(conn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read reply")
	}

	if len(b) == 0 {
		return nil, ErrNoReply
	}

	return b, nil
}
