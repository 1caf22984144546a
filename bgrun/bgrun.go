// Package bgrun is the core of the bgrun daemon: a process registry, a
// per-connection request handler and a listener that ties both to a Unix
// socket.
//
// # Mechanism of Operation
//
// Every connection carries one request. A command request is answered with the
// PID of the started process as soon as it is running, and the connection is
// closed; the goroutine that served the connection then stays behind to wait
// for the process, and it removes the process from the registry once the exit
// has been observed. A running request is answered with a snapshot of the
// registry.
//
// The registry is the only state shared between connections, and no
// operation that may block ever runs while its lock is held.
//
// # Process Lifetime
//
// Commands are started in their own process group, so an interrupt sent to
// the daemon's terminal does not reach them. When the daemon is told to stop,
// it removes its socket and, unless it was started with IgnoreRunning, kills
// every registered process group before returning. With IgnoreRunning, the
// processes are left to run on their own.
//
// On Linux, a process is removed from the registry after its exit is observed
// but before it is reaped, so its PID cannot be reused by a new command while
// it is still listed.
package bgrun
