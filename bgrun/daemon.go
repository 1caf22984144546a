package bgrun

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"

	"git.unix.lgbt/diamondburned/bgrun/bgrun/exec"
	"github.com/pkg/errors"
)

// DefaultReadTimeout is the default time a client has to send its request.
var DefaultReadTimeout = 5 * time.Second

// DefaultShutdownTimeout is the default time the daemon waits for terminated
// commands to be reaped before giving up on them.
var DefaultShutdownTimeout = 5 * time.Second

// DaemonOpts configures a Daemon.
type DaemonOpts struct {
	// SocketPath is the path of the Unix socket to listen on.
	SocketPath string
	// Force removes an existing socket file instead of failing with
	// ErrSocketInUse. A socket that is still served by a live daemon is never
	// removed.
	Force bool
	// IgnoreRunning leaves running commands alive when the daemon stops.
	IgnoreRunning bool
	// WatchSocket stops the daemon if its socket file is removed.
	WatchSocket bool

	// ReadTimeout defaults to DefaultReadTimeout. A negative value disables
	// it.
	ReadTimeout time.Duration
	// StopGrace is how long commands get to exit after SIGTERM before they
	// are SIGKILLed on shutdown. Zero kills them right away.
	StopGrace time.Duration
	// ShutdownTimeout defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// Launch defaults to exec.Launch.
	Launch Launcher
	// Metrics defaults to a no-op collector.
	Metrics MetricsCollector
}

// Daemon accepts connections on a Unix socket and serves each of them on its
// own goroutine.
type Daemon struct {
	opts    DaemonOpts
	j       Journaler
	sock    *socket
	reg     Registry
	handler Handler
	wg      sync.WaitGroup
}

// Listen binds a new daemon to its socket. The returned error matches
// ErrSocketInUse if the socket is taken.
func Listen(opts DaemonOpts, j Journaler) (*Daemon, error) {
	if opts.SocketPath == "" {
		return nil, errors.New("missing socket path")
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.ReadTimeout < 0 {
		opts.ReadTimeout = 0
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Launch == nil {
		opts.Launch = exec.Launch
	}
	if opts.Metrics == nil {
		opts.Metrics = NewNoopMetricsCollector()
	}
	if j == nil {
		j = DiscardJournaler
	}

	sock, forced, err := bindSocket(opts.SocketPath, opts.Force)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		opts: opts,
		j:    j,
		sock: sock,
	}

	d.handler = Handler{
		Registry:      &d.reg,
		Journal:       j,
		Metrics:       opts.Metrics,
		Launch:        opts.Launch,
		ReadTimeout:   opts.ReadTimeout,
		IgnoreRunning: opts.IgnoreRunning,
	}

	j.Write(&EventListening{
		Socket: opts.SocketPath,
		Forced: forced,
	})

	return d, nil
}

// Registry returns the daemon's registry of running commands.
func (d *Daemon) Registry() *Registry {
	return &d.reg
}

// SocketPath returns the path the daemon listens on.
func (d *Daemon) SocketPath() string {
	return d.opts.SocketPath
}

// Serve accepts connections until the context is canceled or, with
// WatchSocket, until the socket file is removed. It then removes the socket,
// terminates the running commands unless IgnoreRunning is set, and returns.
// Serve must only be called once.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if d.opts.WatchSocket {
		err := watchSocket(ctx, d.opts.SocketPath, d.j, func() { cancel(ErrSocketRemoved) })
		if err != nil {
			d.j.Write(&EventWarning{
				Component: "watcher",
				Error:     "not watching socket because: " + err.Error(),
			})
		}
	}

	go func() {
		<-ctx.Done()
		// Unblocks Accept.
		if err := d.sock.Close(); err != nil {
			d.j.Write(&EventWarning{Component: "daemon", Error: err.Error()})
		}
	}()

	d.acceptLoop(ctx)

	// Wait for the socket to be gone before touching any process.
	d.sock.Close()

	reason := context.Cause(ctx)
	if errors.Is(reason, context.Canceled) {
		reason = errors.New("interrupted")
	}

	d.shutdown(reason.Error())
	return nil
}

func (d *Daemon) acceptLoop(ctx context.Context) {
	var tempDelay time.Duration

	for {
		conn, err := d.sock.l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}

			d.j.Write(&EventWarning{
				Component: "daemon",
				Error:     errors.Wrapf(err, "accept failed, retrying in %v", tempDelay).Error(),
			})

			select {
			case <-time.After(tempDelay):
				continue
			case <-ctx.Done():
				return
			}
		}

		tempDelay = 0

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handler.ServeConn(conn)
		}()
	}
}

// shutdown terminates all registered commands unless IgnoreRunning is set.
// Commands that are started by connections still in flight are killed by
// their handlers once they find the registry closed.
func (d *Daemon) shutdown(reason string) {
	procs := d.reg.Close()

	d.j.Write(&EventShutdown{
		Reason:   reason,
		Running:  len(procs),
		Orphaned: d.opts.IgnoreRunning,
	})

	if d.opts.IgnoreRunning {
		return
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	if d.opts.StopGrace > 0 && len(procs) > 0 {
		d.signalAll(procs, syscall.SIGTERM)

		after := time.NewTimer(d.opts.StopGrace)
		defer after.Stop()

		select {
		case <-done:
			return
		case <-after.C:
		}
	}

	// Anything that survived the grace period is still registered.
	d.signalAll(d.reg.Processes(), syscall.SIGKILL)

	after := time.NewTimer(d.opts.ShutdownTimeout)
	defer after.Stop()

	select {
	case <-done:
	case <-after.C:
		d.j.Write(&EventWarning{
			Component: "daemon",
			Error:     "timed out waiting for commands to exit",
		})
	}
}

func (d *Daemon) signalAll(procs []RegisteredProcess, sig syscall.Signal) {
	for _, proc := range procs {
		var err error
		if sig == syscall.SIGKILL {
			err = proc.Process.Kill()
		} else {
			err = proc.Process.Signal(sig)
		}

		if err != nil {
			d.j.Write(&EventWarning{
				Component: "daemon",
				Error:     errors.Wrapf(err, "failed to signal pid %d", proc.PID).Error(),
			})
			continue
		}

		d.j.Write(&EventCommandKilled{
			PID:     proc.PID,
			Command: proc.Argv,
			Signal:  unixSignalName(sig),
		})
	}
}

func unixSignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	default:
		return sig.String()
	}
}
