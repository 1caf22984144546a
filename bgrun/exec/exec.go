// Package exec provides an abstraction around package os' Process
// implementation for easier testing.
package exec

import (
	"os"
	osexec "os/exec"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Process describes a command process.
type Process interface {
	PID() int
	Signal(os.Signal) error
	Kill() error
	// Wait blocks until the process exits. If exited is not nil, it is called
	// once the exit has been observed but before the process is reaped, so the
	// PID cannot be handed to another process while exited runs.
	Wait(exited func()) ExitStatus
}

// ExitStatus is a process' exit status.
type ExitStatus struct {
	PID   int
	Code  int // -1 if killed by a signal
	Error error
}

var (
	// ErrLogFile is returned by Launch if the log file cannot be opened for
	// writing.
	ErrLogFile = errors.New("failed to open log file")
	// ErrSpawn is returned by Launch and StartProcess if the executable cannot
	// be found or started.
	ErrSpawn = errors.New("failed to spawn process")
)

// startError ties the cause of a failed launch to one of the sentinel errors
// above, so callers can tell them apart with errors.Is.
type startError struct {
	kind  error
	cause error
}

func (err startError) Error() string {
	return err.kind.Error() + ": " + err.cause.Error()
}

func (err startError) Is(target error) bool { return target == err.kind }
func (err startError) Unwrap() error        { return err.cause }

type process struct {
	*os.Process
}

var _ Process = process{}

// Launch starts argv as a child process with its combined output written into
// logFile, which is created or truncated. If logFile is empty, the output is
// discarded. Launch returns as soon as the process has started.
func Launch(argv []string, logFile string) (Process, error) {
	out, err := openOutput(logFile)
	if err != nil {
		return nil, startError{ErrLogFile, err}
	}
	// The child has its own copy once started.
	defer out.Close()

	return StartProcess(argv, out)
}

func openOutput(logFile string) (*os.File, error) {
	if logFile == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}

	return os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

// StartProcess creates a new command process on the system with both its
// stdout and stderr going to out. argv[0] is looked up in $PATH. The process is
// placed into its own process group, so signals sent to the daemon's terminal
// do not reach it.
func StartProcess(argv []string, out *os.File) (Process, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, startError{ErrSpawn, errors.New("empty command")}
	}

	path, err := osexec.LookPath(argv[0])
	if err != nil {
		return nil, startError{ErrSpawn, err}
	}

	stdin, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stdin")
	}
	defer stdin.Close()

	if out == nil {
		out = stdin
	}

	p, err := os.StartProcess(path, argv, &os.ProcAttr{
		Files: []*os.File{stdin, out, out},
		Sys:   &syscall.SysProcAttr{Setpgid: true},
	})
	if err != nil {
		return nil, startError{ErrSpawn, err}
	}

	return process{p}, nil
}

func (proc process) PID() int {
	return proc.Pid
}

// Signal sends the signal to the process group, falling back to only the
// process if that fails.
func (proc process) Signal(sig os.Signal) error {
	if s, ok := sig.(syscall.Signal); ok {
		if err := unix.Kill(-proc.Pid, s); err == nil {
			return nil
		}
	}

	return proc.Process.Signal(sig)
}

// Kill SIGKILLs the process group.
func (proc process) Kill() error {
	return proc.Signal(os.Kill)
}

func (proc process) Wait(exited func()) ExitStatus {
	if exited != nil && waitExited(proc.Pid) == nil {
		exited()
		exited = nil
	}

	s, err := proc.Process.Wait()
	if exited != nil {
		exited()
	}

	return ExitStatus{
		PID:   proc.Pid,
		Code:  s.ExitCode(),
		Error: err,
	}
}

// Alive returns true if a process with the given PID exists. Zombies count as
// alive.
func Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
