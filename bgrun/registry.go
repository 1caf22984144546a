package bgrun

import (
	"sort"
	"sync"
	"time"

	"git.unix.lgbt/diamondburned/bgrun/bgrun/exec"
	"git.unix.lgbt/diamondburned/bgrun/bgrun/wire"
	"github.com/pkg/errors"
)

var (
	// ErrDuplicatePID is returned by Insert if the PID is already registered.
	// Since processes are removed before they are reaped, this only happens if
	// something is broken.
	ErrDuplicatePID = errors.New("pid already registered")
	// ErrRegistryClosed is returned by Insert once the daemon is shutting down.
	ErrRegistryClosed = errors.New("registry closed")
)

// RunningCommand describes a launched process whose exit has not been
// observed yet.
type RunningCommand struct {
	PID       int
	Argv      []string
	LogFile   string // empty if output is discarded
	StartedAt time.Time
}

// Entry converts the command into its wire form.
func (cmd RunningCommand) Entry() wire.Entry {
	return wire.NewEntry(cmd.PID, cmd.Argv, cmd.LogFile)
}

// RegisteredProcess pairs a running command with the handle of its process.
type RegisteredProcess struct {
	RunningCommand
	Process exec.Process
}

// Registry is a concurrency-safe mapping from PID to running command. An entry
// exists for a PID if and only if its process was launched and its exit has
// not been observed yet. A zero-value Registry is ready to use.
type Registry struct {
	mu     sync.Mutex
	procs  map[int]RegisteredProcess
	closed bool
}

// Insert registers a launched process. The registry owns the process handle
// until Remove is called.
func (r *Registry) Insert(proc exec.Process, argv []string, logFile string) error {
	cmd := RunningCommand{
		PID:       proc.PID(),
		Argv:      append([]string(nil), argv...),
		LogFile:   logFile,
		StartedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	if _, ok := r.procs[cmd.PID]; ok {
		return errors.Wrapf(ErrDuplicatePID, "pid %d", cmd.PID)
	}

	if r.procs == nil {
		r.procs = make(map[int]RegisteredProcess)
	}

	r.procs[cmd.PID] = RegisteredProcess{cmd, proc}
	return nil
}

// Remove removes the process with the given PID. It does nothing if the PID is
// not registered. The removed command is returned along with true if there
// was one.
func (r *Registry) Remove(pid int) (RunningCommand, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.procs[pid]
	if ok {
		delete(r.procs, pid)
	}

	return e.RunningCommand, ok
}

// Snapshot returns a copy of all running commands sorted by PID.
func (r *Registry) Snapshot() []RunningCommand {
	r.mu.Lock()
	cmds := make([]RunningCommand, 0, len(r.procs))
	for _, e := range r.procs {
		cmds = append(cmds, e.RunningCommand)
	}
	r.mu.Unlock()

	sort.Slice(cmds, func(i, j int) bool { return cmds[i].PID < cmds[j].PID })
	return cmds
}

// Entries returns Snapshot in its wire form.
func (r *Registry) Entries() []wire.Entry {
	cmds := r.Snapshot()

	entries := make([]wire.Entry, len(cmds))
	for i, cmd := range cmds {
		entries[i] = cmd.Entry()
	}

	return entries
}

// Len returns the number of running commands.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.procs)
}

// Close stops the registry from accepting new processes and returns the
// processes that are still registered. Remove and Snapshot keep working.
func (r *Registry) Close() []RegisteredProcess {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return r.handles()
}

// Processes returns all registered processes along with their handles.
func (r *Registry) Processes() []RegisteredProcess {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.handles()
}

func (r *Registry) handles() []RegisteredProcess {
	procs := make([]RegisteredProcess, 0, len(r.procs))
	for _, e := range r.procs {
		procs = append(procs, e)
	}
	return procs
}
